// Package storetest holds behaviour tests shared by every Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("Banks", func(t *testing.T) { testBanks(t, newStore(t)) })
	t.Run("BankUpdates", func(t *testing.T) { testBankUpdates(t, newStore(t)) })
	t.Run("LedgerRecords", func(t *testing.T) { testLedgerRecords(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("SyncLogs", func(t *testing.T) { testSyncLogs(t, newStore(t)) })
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	cfg, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	require.NoError(t, s.SaveSettings(ctx, model.Settings{Enabled: true, SupplierDefaultGroup: "All Supplier Groups"}))
	cfg, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "All Supplier Groups", cfg.SupplierDefaultGroup)

	_, err = s.Access(ctx, "Acme")
	assert.ErrorIs(t, err, store.ErrNotFound)

	expiry := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveAccess(ctx, model.Access{Company: "Acme", SecretID: "id", AccessToken: "a", AccessExpiry: expiry}))
	a, err := s.Access(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "a", a.AccessToken)
	assert.True(t, expiry.Equal(a.AccessExpiry))
}

func testBanks(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Bank(ctx, "Nordea")
	assert.ErrorIs(t, err, store.ErrNotFound)

	b := model.Bank{
		Name:       "Nordea",
		Company:    "Acme",
		BankName:   "Nordea",
		BankID:     "NORDEA_NDEAFIHH",
		AuthStatus: model.AuthLinked,
		AutoSync:   true,
		DocStatus:  model.DocSubmitted,
		Accounts: []model.BankAccount{
			{Account: "Main - EUR", AccountID: "acc-1", Currency: "EUR", Status: model.AccountReady},
			{Account: "Savings - EUR", AccountID: "acc-2", Currency: "EUR", Status: model.AccountExpired},
		},
	}
	require.NoError(t, s.SaveBank(ctx, b))
	require.NoError(t, s.SaveBank(ctx, model.Bank{Name: "Revolut", Company: "Other", BankName: "Revolut", Disabled: true}))

	got, err := s.Bank(ctx, "Nordea")
	require.NoError(t, err)
	require.Len(t, got.Accounts, 2)
	assert.Equal(t, "Main - EUR", got.Accounts[0].Account)
	assert.Equal(t, "Nordea", got.Accounts[0].Parent)
	assert.Equal(t, model.AccountExpired, got.Accounts[1].Status)

	got.Accounts = got.Accounts[:1]
	require.NoError(t, s.SaveBank(ctx, got))
	got, err = s.Bank(ctx, "Nordea")
	require.NoError(t, err)
	assert.Len(t, got.Accounts, 1)

	enabled, err := s.Banks(ctx, store.BankFilter{Enabled: true, AutoSync: true, AuthStatus: model.AuthLinked})
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "Nordea", enabled[0].Name)

	all, err := s.Banks(ctx, store.BankFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteBank(ctx, "Revolut"))
	assert.ErrorIs(t, s.DeleteBank(ctx, "Revolut"), store.ErrNotFound)
}

func testBankUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateBank(ctx, "Nordea", func(*model.Bank) error { return nil }), store.ErrNotFound)

	accounts := make([]model.BankAccount, 6)
	for i := range accounts {
		accounts[i] = model.BankAccount{Account: fmt.Sprintf("Account %d", i), AccountID: fmt.Sprintf("acc-%d", i), Status: model.AccountReady}
	}
	require.NoError(t, s.SaveBank(ctx, model.Bank{Name: "Nordea", Company: "Acme", BankName: "Nordea", Accounts: accounts}))

	noop := func(*model.BankAccount) error { return nil }
	assert.ErrorIs(t, s.UpdateBankAccount(ctx, "Nordea", "Missing", noop), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateBankAccount(ctx, "Revolut", "Account 0", noop), store.ErrNotFound)

	errStop := errors.New("stop")
	err := s.UpdateBankAccount(ctx, "Nordea", "Account 0", func(a *model.BankAccount) error {
		a.BankAccountRef = "Account 0 - Nordea"
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	err = s.UpdateBank(ctx, "Nordea", func(b *model.Bank) error {
		b.AuthStatus = model.AuthLinked
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	got, err := s.Bank(ctx, "Nordea")
	require.NoError(t, err)
	assert.Empty(t, got.Accounts[0].BankAccountRef)
	assert.Empty(t, got.AuthStatus)

	// Every account gets its last sync from its own goroutine while the bank
	// is updated alongside them.
	lastSync := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	var wg sync.WaitGroup
	errs := make([]error, len(accounts)+1)
	for i, a := range accounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.UpdateBankAccount(ctx, "Nordea", a.Account, func(row *model.BankAccount) error {
				row.LastSync = lastSync.AddDate(0, 0, i)
				row.Balances = a.Account
				return nil
			})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[len(accounts)] = s.UpdateBank(ctx, "Nordea", func(b *model.Bank) error {
			b.AuthStatus = model.AuthLinked
			return nil
		})
	}()
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err = s.Bank(ctx, "Nordea")
	require.NoError(t, err)
	assert.Equal(t, model.AuthLinked, got.AuthStatus)
	require.Len(t, got.Accounts, len(accounts))
	for i, a := range got.Accounts {
		assert.Equal(t, fmt.Sprintf("Account %d", i), a.Account, "order is kept")
		assert.Equal(t, "Nordea", a.Parent)
		assert.True(t, lastSync.AddDate(0, 0, i).Equal(a.LastSync), "last sync of %s", a.Account)
		assert.Equal(t, a.Account, a.Balances)
	}
}

func testLedgerRecords(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveLedgerBank(ctx, model.LedgerBank{Name: "Nordea", FromGocardless: true}))
	lb, err := s.LedgerBank(ctx, "Nordea")
	require.NoError(t, err)
	assert.True(t, lb.FromGocardless)

	require.NoError(t, s.SaveLedgerBankAccount(ctx, model.LedgerBankAccount{
		Name: "Main - EUR - Nordea", AccountName: "Main - EUR", Bank: "Nordea", Company: "Acme", IsDefault: true,
	}))
	require.NoError(t, s.SaveLedgerBankAccount(ctx, model.LedgerBankAccount{
		Name: "Coffee Corner - Nordea", AccountName: "Coffee Corner", Bank: "Nordea",
		PartyType: model.PartySupplier, Party: "Coffee Corner",
	}))
	accounts, err := s.LedgerBankAccounts(ctx, "Nordea", "Acme")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsDefault)

	accounts, err = s.LedgerBankAccounts(ctx, "Nordea", "")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, s.SaveCurrency(ctx, model.Currency{Name: "EUR", Enabled: false}))
	c, err := s.Currency(ctx, "EUR")
	require.NoError(t, err)
	assert.False(t, c.Enabled)

	require.NoError(t, s.SaveParty(ctx, model.Party{Type: model.PartySupplier, Name: "Coffee Corner", Group: "Services"}))
	_, err = s.Party(ctx, model.PartyCustomer, "Coffee Corner")
	assert.ErrorIs(t, err, store.ErrNotFound)
	p, err := s.Party(ctx, model.PartySupplier, "Coffee Corner")
	require.NoError(t, err)
	assert.Equal(t, "Services", p.Group)

	require.NoError(t, s.DeleteParty(ctx, model.PartySupplier, "Coffee Corner"))
	require.NoError(t, s.DeleteCurrency(ctx, "EUR"))
	require.NoError(t, s.DeleteLedgerBankAccount(ctx, "Main - EUR - Nordea"))
	require.NoError(t, s.DeleteLedgerBank(ctx, "Nordea"))
	_, err = s.LedgerBank(ctx, "Nordea")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tx := model.BankTransaction{
		Name:           "tx-1",
		Date:           day,
		Status:         model.TransactionSettled,
		BankAccount:    "Main - EUR - Nordea",
		Deposit:        decimal.RequireFromString("10.5"),
		Withdrawal:     decimal.Zero,
		Currency:       "EUR",
		TransactionID:  "T1",
		FromGocardless: true,
	}
	require.NoError(t, s.InsertTransaction(ctx, tx))

	dup := tx
	dup.Name = "tx-2"
	assert.ErrorIs(t, s.InsertTransaction(ctx, dup), store.ErrDuplicate)

	exists, err := s.TransactionExists(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.TransactionExists(ctx, "T2")
	require.NoError(t, err)
	assert.False(t, exists)

	list, err := s.Transactions(ctx, store.TransactionFilter{BankAccounts: []string{"Main - EUR - Nordea"}, FromGocardless: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Deposit.Equal(decimal.RequireFromString("10.5")))

	list, err = s.Transactions(ctx, store.TransactionFilter{BankAccounts: []string{"Other"}})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.DeleteTransaction(ctx, "tx-1"))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, "tx-1"), store.ErrNotFound)
}

func testSyncLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	today := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	logs := []model.SyncLog{
		{ID: "s1", Bank: "Nordea", Account: "Main", Created: today.Add(-time.Hour)},
		{ID: "s2", Bank: "Nordea", Account: "Main", Created: today.Add(time.Hour)},
		{ID: "s3", Bank: "Nordea", Account: "Main", Created: today.Add(2 * time.Hour)},
		{ID: "s4", Bank: "Nordea", Account: "Savings", Created: today.Add(time.Hour)},
	}
	for _, l := range logs {
		l.Trigger = model.TriggerManual
		l.Status = model.SyncPending
		require.NoError(t, s.InsertSyncLog(ctx, l))
	}

	n, err := s.CountSyncLogs(ctx, "Nordea", "Main", today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.UpdateSyncLog(ctx, model.SyncLog{ID: "s2", Status: model.SyncFinished, Transactions: 3}))
	assert.ErrorIs(t, s.UpdateSyncLog(ctx, model.SyncLog{ID: "missing"}), store.ErrNotFound)

	require.NoError(t, s.DeleteSyncLogs(ctx, "Nordea"))
	n, err = s.CountSyncLogs(ctx, "Nordea", "Main", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
