package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobIDs(t *testing.T) {
	assert.Equal(t, "gocardless-sync-bank-Nordea", SyncBankJobID("Nordea"))
	assert.Equal(t, "gocardless-bank-transactions-sync-Main - EUR", TransactionsSyncJobID("Main - EUR"))
	assert.Equal(t, "gocardless-clean-trash-Nordea", CleanTrashJobID("Nordea"))
}

func TestParseJobID(t *testing.T) {
	tests := []struct {
		input    string
		wantKind string
		wantKey  string
	}{
		{"gocardless-sync-bank-Nordea", KindSyncBank, "Nordea"},
		{"gocardless-bank-transactions-sync-Main - EUR", KindTransactionsSync, "Main - EUR"},
		{"gocardless-clean-trash-Revolut", KindCleanTrash, "Revolut"},
	}
	for _, tt := range tests {
		kind, key, err := ParseJobID(tt.input)
		require.NoError(t, err, "ParseJobID(%q)", tt.input)
		assert.Equal(t, tt.wantKind, kind)
		assert.Equal(t, tt.wantKey, key)
	}
}

func TestParseJobID_Invalid(t *testing.T) {
	invalid := []string{"", "gocardless-sync-bank", "gocardless-sync-bank-", "other-job"}
	for _, input := range invalid {
		_, _, err := ParseJobID(input)
		assert.Error(t, err, "ParseJobID(%q) should fail", input)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Main - EUR - Nordea", BankAccountName("Main - EUR", "Nordea"))
	assert.Equal(t, "Nordea Account", DefaultAccountName("Nordea"))
}

func TestTransactionID(t *testing.T) {
	a := TransactionID([]byte(`{"amount":"10.00"}`))
	b := TransactionID([]byte(`{"amount":"10.00"}`))
	c := TransactionID([]byte(`{"amount":"11.00"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Len(t, a, 36)
}

func TestSyncID(t *testing.T) {
	assert.NotEqual(t, SyncID(), SyncID())
}

func TestCurrenciesJobID(t *testing.T) {
	a := CurrenciesJobID(KindAddCurrencies, []string{"USD", "EUR", "USD"})
	b := CurrenciesJobID(KindAddCurrencies, []string{"EUR", "USD"})
	assert.Equal(t, "gocardless-add-currencies-EUR-USD", a)
	assert.Equal(t, a, b)

	kind, key, err := ParseJobID(CurrenciesJobID(KindEnableCurrencies, []string{"SEK"}))
	require.NoError(t, err)
	assert.Equal(t, KindEnableCurrencies, kind)
	assert.Equal(t, "SEK", key)
}
