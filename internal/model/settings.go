package model

import "time"

// DefaultSyncLimit is the number of transaction syncs allowed per account per day.
const DefaultSyncLimit = 4

// Settings holds the sync switches and transaction policies.
type Settings struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	OnlySyncTransactionsWithID                bool `json:"only_sync_transactions_with_id" yaml:"only_sync_transactions_with_id"`
	IgnoreTransactionsWithoutDate             bool `json:"ignore_transactions_without_date" yaml:"ignore_transactions_without_date"`
	IgnoreTransactionsWithoutAmount           bool `json:"ignore_transactions_without_amount" yaml:"ignore_transactions_without_amount"`
	IgnoreTransactionsWithoutCurrency         bool `json:"ignore_transactions_without_currency" yaml:"ignore_transactions_without_currency"`
	IgnoreTransactionsWithoutExistingCurrency bool `json:"ignore_transactions_without_existing_currency" yaml:"ignore_transactions_without_existing_currency"`
	IgnoreTransactionsWithoutEnabledCurrency  bool `json:"ignore_transactions_without_enabled_currency" yaml:"ignore_transactions_without_enabled_currency"`

	AddSupplierInfoIfAvailable              bool   `json:"add_supplier_info_if_available" yaml:"add_supplier_info_if_available"`
	CreateSupplierIfDoesNotExist            bool   `json:"create_supplier_if_does_not_exist" yaml:"create_supplier_if_does_not_exist"`
	CreateSupplierBankAccountIfDoesNotExist bool   `json:"create_supplier_bank_account_if_does_not_exist" yaml:"create_supplier_bank_account_if_does_not_exist"`
	SupplierDefaultGroup                    string `json:"supplier_default_group" yaml:"supplier_default_group"`

	AddCustomerInfoIfAvailable              bool   `json:"add_customer_info_if_available" yaml:"add_customer_info_if_available"`
	CreateCustomerIfDoesNotExist            bool   `json:"create_customer_if_does_not_exist" yaml:"create_customer_if_does_not_exist"`
	CreateCustomerBankAccountIfDoesNotExist bool   `json:"create_customer_bank_account_if_does_not_exist" yaml:"create_customer_bank_account_if_does_not_exist"`
	CustomerDefaultGroup                    string `json:"customer_default_group" yaml:"customer_default_group"`
	CustomerDefaultTerritory                string `json:"customer_default_territory" yaml:"customer_default_territory"`

	CleanBankTransaction bool `json:"clean_bank_transaction" yaml:"clean_bank_transaction"`
	CleanBankAccount     bool `json:"clean_bank_account" yaml:"clean_bank_account"`
	CleanBank            bool `json:"clean_bank" yaml:"clean_bank"`
	CleanCurrency        bool `json:"clean_currency" yaml:"clean_currency"`
	CleanSupplier        bool `json:"clean_supplier" yaml:"clean_supplier"`
	CleanCustomer        bool `json:"clean_customer" yaml:"clean_customer"`

	SyncLimit int `json:"sync_limit" yaml:"sync_limit"`
}

// Limit returns the configured sync limit, falling back to DefaultSyncLimit.
func (s Settings) Limit() int {
	if s.SyncLimit <= 0 {
		return DefaultSyncLimit
	}
	return s.SyncLimit
}

// Access is a company's API credential row with its cached tokens.
type Access struct {
	Company       string    `db:"company"`
	SecretID      string    `db:"secret_id"`
	SecretKey     string    `db:"secret_key"`
	AccessToken   string    `db:"access_token"`
	AccessExpiry  time.Time `db:"access_expiry"`
	RefreshToken  string    `db:"refresh_token"`
	RefreshExpiry time.Time `db:"refresh_expiry"`
}

// Company is the ledger company a bank belongs to.
type Company struct {
	Name            string `db:"name"`
	Country         string `db:"country"`
	DefaultCurrency string `db:"default_currency"`
}

// Country maps a country name to its ISO 3166-1 alpha-2 code.
type Country struct {
	Name string `db:"name"`
	Code string `db:"code"`
}
