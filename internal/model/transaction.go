package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the settlement state of a bank transaction.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "Pending"
	TransactionSettled TransactionStatus = "Settled"
)

// BankTransaction is a ledger bank transaction.
type BankTransaction struct {
	Name            string            `db:"name"`
	Date            time.Time         `db:"date"`
	Status          TransactionStatus `db:"status"`
	BankAccount     string            `db:"bank_account"`
	Deposit         decimal.Decimal   `db:"deposit"`
	Withdrawal      decimal.Decimal   `db:"withdrawal"`
	Currency        string            `db:"currency"`
	Description     string            `db:"description"`
	Information     string            `db:"information"`
	ReferenceNumber string            `db:"reference_number"`
	TransactionID   string            `db:"transaction_id"`
	PartyType       PartyType         `db:"party_type"`
	Party           string            `db:"party"`
	FromGocardless  bool              `db:"from_gocardless"`
}

// Amount returns deposit minus withdrawal.
func (t BankTransaction) Amount() decimal.Decimal {
	return t.Deposit.Sub(t.Withdrawal)
}

// SetAmount splits amount into deposit (>= 0) or withdrawal (< 0).
func (t *BankTransaction) SetAmount(amount decimal.Decimal) {
	if amount.IsNegative() {
		t.Deposit = decimal.Zero
		t.Withdrawal = amount.Abs()
		return
	}
	t.Deposit = amount
	t.Withdrawal = decimal.Zero
}

// SyncTrigger records what started a transaction sync.
type SyncTrigger string

const (
	TriggerAuto   SyncTrigger = "Auto"
	TriggerManual SyncTrigger = "Manual"
)

// SyncStatus is the progress of a transaction sync.
type SyncStatus string

const (
	SyncPending  SyncStatus = "Pending"
	SyncOngoing  SyncStatus = "Ongoing"
	SyncFinished SyncStatus = "Finished"
)

// SyncLog records one transaction sync of a bank account.
type SyncLog struct {
	ID           string      `db:"id"`
	Bank         string      `db:"bank"`
	Account      string      `db:"account"`
	FromDate     time.Time   `db:"from_date"`
	ToDate       time.Time   `db:"to_date"`
	Trigger      SyncTrigger `db:"sync_trigger"`
	Status       SyncStatus  `db:"status"`
	Transactions int         `db:"transactions"`
	Created      time.Time   `db:"created"`
}
