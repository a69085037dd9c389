package bankaccount

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/model"
)

// Remote is everything the API reports about one account of a requisition.
type Remote struct {
	ID       string
	Account  gocardless.Account
	Details  gocardless.AccountDetails
	Balances []gocardless.Balance
}

type naming int

const (
	namesAsIs naming = iota + 1
	namesWithCurrency
	namesWithCurrencyAndIndex
	namesWithIndex
)

// Prepare turns remote accounts into bank rows. Unnamed accounts are called
// "<bank> Account". When names collide every name gets the currency
// appended, plus a running index when currencies collide too, or only the
// index when some account has no currency. Accounts without a currency
// take defaultCurrency. Invalid IBANs are dropped.
func Prepare(remotes []Remote, bank, defaultCurrency string) ([]model.BankAccount, error) {
	names := make([]string, len(remotes))
	seenNames := make(map[string]bool)
	seenCurrencies := make(map[string]bool)
	var dupName, dupCurrency, noCurrency bool

	for i, r := range remotes {
		names[i] = strings.TrimSpace(r.Details.Name)
		if names[i] == "" {
			names[i] = id.DefaultAccountName(bank)
		}
		if seenNames[names[i]] {
			dupName = true
		}
		seenNames[names[i]] = true

		cur := r.Details.Currency
		switch {
		case cur == "":
			noCurrency = true
		case seenCurrencies[cur]:
			dupCurrency = true
		}
		seenCurrencies[cur] = true
	}

	level := namesAsIs
	if dupName {
		switch {
		case noCurrency:
			level = namesWithIndex
		case dupCurrency:
			level = namesWithCurrencyAndIndex
		default:
			level = namesWithCurrency
		}
	}

	rows := make([]model.BankAccount, 0, len(remotes))
	idx := 1
	for i, r := range remotes {
		name := names[i]
		cur := strings.ToUpper(r.Details.Currency)
		switch level {
		case namesWithCurrency:
			name = fmt.Sprintf("%s - %s", name, cur)
		case namesWithCurrencyAndIndex:
			name = fmt.Sprintf("%s - %s - %d", name, cur, idx)
			idx++
		case namesWithIndex:
			name = fmt.Sprintf("%s - %d", name, idx)
			idx++
		}

		iban := r.Details.IBAN
		if iban == "" {
			iban = r.Account.IBAN
		}
		if iban != "" && !ValidIBAN(iban) {
			iban = ""
		}
		if cur == "" {
			cur = defaultCurrency
		}

		balances, err := EncodeBalances(r.Balances)
		if err != nil {
			return nil, fmt.Errorf("encoding balances of %s: %w", r.ID, err)
		}

		rows = append(rows, model.BankAccount{
			Account:     name,
			AccountID:   r.ID,
			Currency:    cur,
			Status:      r.Account.Status,
			AccountType: r.Details.CashAccountType,
			AccountNo:   r.Details.ResourceID,
			IBAN:        iban,
			Balances:    balances,
		})
	}
	return rows, nil
}

// EncodeBalances renders balances the way they are kept on bank rows.
func EncodeBalances(balances []gocardless.Balance) (string, error) {
	if len(balances) == 0 {
		return "", nil
	}
	b, err := json.Marshal(balances)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Merge folds rows into the accounts of b. Existing accounts keep their
// ledger link and last sync, and only take the non-empty fields that
// changed. It returns the names of accounts that were added.
func Merge(b *model.Bank, rows []model.BankAccount) []string {
	var added []string
	for _, row := range rows {
		cur := b.Account(row.Account)
		if cur == nil {
			row.Parent = b.Name
			b.Accounts = append(b.Accounts, row)
			added = append(added, row.Account)
			continue
		}
		setIf(&cur.AccountID, row.AccountID)
		setIf(&cur.Currency, row.Currency)
		setIf(&cur.AccountType, row.AccountType)
		setIf(&cur.AccountNo, row.AccountNo)
		setIf(&cur.IBAN, row.IBAN)
		setIf(&cur.Balances, row.Balances)
		if row.Status != "" {
			cur.Status = row.Status
		}
	}
	return added
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
