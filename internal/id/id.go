package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Job kinds used as background job ID prefixes.
const (
	KindSyncBank         = "gocardless-sync-bank"
	KindTransactionsSync = "gocardless-bank-transactions-sync"
	KindCleanTrash       = "gocardless-clean-trash"
	KindAddCurrencies    = "gocardless-add-currencies"
	KindEnableCurrencies = "gocardless-enable-currencies"
)

var kinds = []string{KindTransactionsSync, KindSyncBank, KindCleanTrash, KindAddCurrencies, KindEnableCurrencies}

// SyncBankJobID returns the job ID for syncing the accounts of a bank, like "gocardless-sync-bank-Nordea".
func SyncBankJobID(bank string) string {
	return KindSyncBank + "-" + bank
}

// TransactionsSyncJobID returns the job ID for syncing one account's transactions.
func TransactionsSyncJobID(account string) string {
	return KindTransactionsSync + "-" + account
}

// CleanTrashJobID returns the job ID for cleaning up after a deleted bank.
func CleanTrashJobID(bank string) string {
	return KindCleanTrash + "-" + bank
}

// CurrenciesJobID returns the job ID of a currency job of kind over names.
// The key does not depend on the order of names.
func CurrenciesJobID(kind string, names []string) string {
	key := slices.Clone(names)
	slices.Sort(key)
	return kind + "-" + strings.Join(slices.Compact(key), "-")
}

// ParseJobID splits a job ID into its kind and key.
func ParseJobID(jobID string) (kind, key string, err error) {
	for _, k := range kinds {
		if strings.HasPrefix(jobID, k+"-") && len(jobID) > len(k)+1 {
			return k, jobID[len(k)+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid job ID: %q", jobID)
}

// BankAccountName returns the ledger bank account name "<account> - <bank>".
func BankAccountName(account, bank string) string {
	return fmt.Sprintf("%s - %s", account, bank)
}

// DefaultAccountName returns the name given to accounts the provider leaves unnamed.
func DefaultAccountName(bank string) string {
	return bank + " Account"
}

// TransactionID derives a stable transaction ID from the raw transaction payload.
// Every other hex digit of the SHA-256 digest forms the UUID.
func TransactionID(payload []byte) string {
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	var b strings.Builder
	for i := 0; i < len(digest); i += 2 {
		b.WriteByte(digest[i])
	}

	u, err := uuid.Parse(b.String())
	if err != nil {
		// 32 hex digits always parse.
		panic(err)
	}
	return u.String()
}

// SyncID returns a new random sync log ID.
func SyncID() string {
	return uuid.NewString()
}
