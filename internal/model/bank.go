package model

import "time"

// AuthStatus is the requisition link state of a bank.
type AuthStatus string

const (
	AuthUnlinked AuthStatus = "Unlinked"
	AuthLinked   AuthStatus = "Linked"
)

// DocStatus is the submission state of a bank record.
type DocStatus int

const (
	DocDraft     DocStatus = 0
	DocSubmitted DocStatus = 1
	DocCancelled DocStatus = 2
)

// AccountStatus is the provider-reported state of a bank account.
type AccountStatus string

const (
	AccountReady      AccountStatus = "Ready"
	AccountDiscovered AccountStatus = "Discovered"
	AccountProcessing AccountStatus = "Processing"
	AccountError      AccountStatus = "Error"
	AccountExpired    AccountStatus = "Expired"
	AccountSuspended  AccountStatus = "Suspended"
	AccountEnabled    AccountStatus = "Enabled"
	AccountDeleted    AccountStatus = "Deleted"
	AccountBlocked    AccountStatus = "Blocked"
)

// DefaultTransactionDays is the history depth requested when an institution does not report one.
const DefaultTransactionDays = 90

// Bank is an institution linked for a company through a requisition.
type Bank struct {
	Name            string        `db:"name"`
	Company         string        `db:"company"`
	Country         string        `db:"country"`
	BankName        string        `db:"bank"`
	BankID          string        `db:"bank_id"`
	TransactionDays int           `db:"transaction_days"`
	AuthID          string        `db:"auth_id"`
	AuthExpiry      time.Time     `db:"auth_expiry"`
	AuthStatus      AuthStatus    `db:"auth_status"`
	AutoSync        bool          `db:"auto_sync"`
	Disabled        bool          `db:"disabled"`
	DocStatus       DocStatus     `db:"docstatus"`
	BankRef         string        `db:"bank_ref"`
	Accounts        []BankAccount `db:"-"`
}

// BankAccount is an account discovered under a linked bank.
type BankAccount struct {
	Parent         string        `db:"parent"`
	Account        string        `db:"account"`
	AccountID      string        `db:"account_id"`
	Currency       string        `db:"account_currency"`
	Status         AccountStatus `db:"status"`
	AccountType    string        `db:"account_type"`
	AccountNo      string        `db:"account_no"`
	IBAN           string        `db:"iban"`
	Balances       string        `db:"balances"`
	LastSync       time.Time     `db:"last_sync"`
	BankAccountRef string        `db:"bank_account_ref"`
}

// Account returns the row named account, or nil.
func (b *Bank) Account(account string) *BankAccount {
	for i := range b.Accounts {
		if b.Accounts[i].Account == account {
			return &b.Accounts[i]
		}
	}
	return nil
}

// AccountByRef returns the row linked to the ledger bank account ref, or nil.
func (b *Bank) AccountByRef(ref string) *BankAccount {
	if ref == "" {
		return nil
	}
	for i := range b.Accounts {
		if b.Accounts[i].BankAccountRef == ref {
			return &b.Accounts[i]
		}
	}
	return nil
}

// Authorized reports whether the requisition is linked and not expired on day.
func (b *Bank) Authorized(day time.Time) bool {
	if b.AuthID == "" || b.AuthStatus != AuthLinked {
		return false
	}
	return !b.AuthExpiry.Before(TruncateDay(day))
}

// Days returns TransactionDays, falling back to DefaultTransactionDays.
func (b *Bank) Days() int {
	if b.TransactionDays <= 0 {
		return DefaultTransactionDays
	}
	return b.TransactionDays
}

// TruncateDay returns t at midnight UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
