package bankaccount

import (
	"math/big"
	"strconv"
	"strings"
)

var ninetySeven = big.NewInt(97)

// ValidIBAN reports whether value passes the ISO 13616 mod-97 check.
// Spaces are ignored and letters are case-insensitive.
func ValidIBAN(value string) bool {
	iban := strings.ToUpper(strings.ReplaceAll(value, " ", ""))
	if len(iban) < 5 {
		return false
	}

	var b strings.Builder
	for _, c := range iban[4:] + iban[:4] {
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteString(strconv.Itoa(int(c-'A') + 10))
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			return false
		}
	}

	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, ninetySeven).Int64() == 1
}
