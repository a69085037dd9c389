// Package store defines persistence for settings, linked banks and the ledger
// records the sync writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cleared-dev/gcsync/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when inserting a transaction whose transaction ID already exists.
	ErrDuplicate = errors.New("duplicate transaction id")
)

// BankFilter selects linked banks. Zero fields match everything.
type BankFilter struct {
	Company    string
	Enabled    bool // not disabled
	AutoSync   bool
	AuthStatus model.AuthStatus
	DocStatus  *model.DocStatus
}

// Match reports whether b passes the filter.
func (f BankFilter) Match(b model.Bank) bool {
	if f.Company != "" && b.Company != f.Company {
		return false
	}
	if f.Enabled && b.Disabled {
		return false
	}
	if f.AutoSync && !b.AutoSync {
		return false
	}
	if f.AuthStatus != "" && b.AuthStatus != f.AuthStatus {
		return false
	}
	if f.DocStatus != nil && b.DocStatus != *f.DocStatus {
		return false
	}
	return true
}

// TransactionFilter selects ledger bank transactions.
type TransactionFilter struct {
	BankAccounts   []string
	FromGocardless bool
}

// Store is the persistence used by the sync services.
type Store interface {
	Settings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
	Access(ctx context.Context, company string) (model.Access, error)
	SaveAccess(ctx context.Context, a model.Access) error

	Company(ctx context.Context, name string) (model.Company, error)
	SaveCompany(ctx context.Context, c model.Company) error
	Country(ctx context.Context, name string) (model.Country, error)
	SaveCountry(ctx context.Context, c model.Country) error

	Bank(ctx context.Context, name string) (model.Bank, error)
	Banks(ctx context.Context, f BankFilter) ([]model.Bank, error)
	SaveBank(ctx context.Context, b model.Bank) error
	// UpdateBank applies fn to bank name and its accounts and saves the
	// result atomically. Nothing is written when fn returns an error.
	UpdateBank(ctx context.Context, name string, fn func(*model.Bank) error) error
	// UpdateBankAccount applies fn to the account row of bank and saves that
	// row alone. The row keeps its parent and account name.
	UpdateBankAccount(ctx context.Context, bank, account string, fn func(*model.BankAccount) error) error
	DeleteBank(ctx context.Context, name string) error

	LedgerBank(ctx context.Context, name string) (model.LedgerBank, error)
	SaveLedgerBank(ctx context.Context, b model.LedgerBank) error
	DeleteLedgerBank(ctx context.Context, name string) error

	BankAccountType(ctx context.Context, name string) (model.BankAccountType, error)
	SaveBankAccountType(ctx context.Context, t model.BankAccountType) error

	LedgerBankAccount(ctx context.Context, name string) (model.LedgerBankAccount, error)
	LedgerBankAccounts(ctx context.Context, bank, company string) ([]model.LedgerBankAccount, error)
	SaveLedgerBankAccount(ctx context.Context, a model.LedgerBankAccount) error
	DeleteLedgerBankAccount(ctx context.Context, name string) error

	Currency(ctx context.Context, name string) (model.Currency, error)
	SaveCurrency(ctx context.Context, c model.Currency) error
	DeleteCurrency(ctx context.Context, name string) error

	Party(ctx context.Context, typ model.PartyType, name string) (model.Party, error)
	SaveParty(ctx context.Context, p model.Party) error
	DeleteParty(ctx context.Context, typ model.PartyType, name string) error

	TransactionExists(ctx context.Context, transactionID string) (bool, error)
	InsertTransaction(ctx context.Context, t model.BankTransaction) error
	Transactions(ctx context.Context, f TransactionFilter) ([]model.BankTransaction, error)
	DeleteTransaction(ctx context.Context, name string) error

	InsertSyncLog(ctx context.Context, l model.SyncLog) error
	UpdateSyncLog(ctx context.Context, l model.SyncLog) error
	CountSyncLogs(ctx context.Context, bank, account string, since time.Time) (int, error)
	DeleteSyncLogs(ctx context.Context, bank string) error
}
