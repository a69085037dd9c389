package model

// LedgerBank is the accounting bank record a linked bank maps to.
type LedgerBank struct {
	Name           string `db:"name"`
	FromGocardless bool   `db:"from_gocardless"`
}

// BankAccountType classifies ledger bank accounts (e.g. "CACC").
type BankAccountType struct {
	Name           string `db:"name"`
	FromGocardless bool   `db:"from_gocardless"`
}

// PartyType distinguishes suppliers from customers.
type PartyType string

const (
	PartySupplier PartyType = "Supplier"
	PartyCustomer PartyType = "Customer"
)

// LedgerBankAccount is a company or party bank account in the ledger.
type LedgerBankAccount struct {
	Name           string    `db:"name"`
	AccountName    string    `db:"account_name"`
	Bank           string    `db:"bank"`
	AccountType    string    `db:"account_type"`
	AccountNo      string    `db:"account_no"`
	Company        string    `db:"company"`
	IBAN           string    `db:"iban"`
	IsDefault      bool      `db:"is_default"`
	PartyType      PartyType `db:"party_type"`
	Party          string    `db:"party"`
	FromGocardless bool      `db:"from_gocardless"`
}

// Currency is a ledger currency.
type Currency struct {
	Name           string `db:"name"`
	Enabled        bool   `db:"enabled"`
	FromGocardless bool   `db:"from_gocardless"`
}

// Party is a supplier or customer.
type Party struct {
	Type               PartyType `db:"party_type"`
	Name               string    `db:"name"`
	Group              string    `db:"party_group"`
	Territory          string    `db:"territory"`
	Kind               string    `db:"kind"`
	DefaultBankAccount string    `db:"default_bank_account"`
	FromGocardless     bool      `db:"from_gocardless"`
}

// IndividualParty is the kind given to parties created from transactions.
const IndividualParty = "Individual"
