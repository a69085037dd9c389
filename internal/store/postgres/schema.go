package postgres

// migrations are applied in order; each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		id   text PRIMARY KEY,
		data jsonb NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS access (
		company        text PRIMARY KEY,
		secret_id      text NOT NULL DEFAULT '',
		secret_key     text NOT NULL DEFAULT '',
		access_token   text NOT NULL DEFAULT '',
		access_expiry  timestamptz NOT NULL DEFAULT '0001-01-01T00:00:00Z',
		refresh_token  text NOT NULL DEFAULT '',
		refresh_expiry timestamptz NOT NULL DEFAULT '0001-01-01T00:00:00Z'
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		name             text PRIMARY KEY,
		country          text NOT NULL DEFAULT '',
		default_currency text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS countries (
		name text PRIMARY KEY,
		code text NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS banks (
		name             text PRIMARY KEY,
		company          text NOT NULL,
		country          text NOT NULL DEFAULT '',
		bank             text NOT NULL,
		bank_id          text NOT NULL DEFAULT '',
		transaction_days integer NOT NULL DEFAULT 90,
		auth_id          text NOT NULL DEFAULT '',
		auth_expiry      timestamptz NOT NULL DEFAULT '0001-01-01T00:00:00Z',
		auth_status      text NOT NULL DEFAULT 'Unlinked',
		auto_sync        boolean NOT NULL DEFAULT false,
		disabled         boolean NOT NULL DEFAULT false,
		docstatus        integer NOT NULL DEFAULT 0,
		bank_ref         text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS bank_accounts (
		parent           text NOT NULL REFERENCES banks(name) ON DELETE CASCADE,
		idx              integer NOT NULL,
		account          text NOT NULL,
		account_id       text NOT NULL,
		account_currency text NOT NULL DEFAULT '',
		status           text NOT NULL DEFAULT 'Ready',
		account_type     text NOT NULL DEFAULT '',
		account_no       text NOT NULL DEFAULT '',
		iban             text NOT NULL DEFAULT '',
		balances         text NOT NULL DEFAULT '',
		last_sync        timestamptz NOT NULL DEFAULT '0001-01-01T00:00:00Z',
		bank_account_ref text NOT NULL DEFAULT '',
		PRIMARY KEY (parent, account)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_banks (
		name            text PRIMARY KEY,
		from_gocardless boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS bank_account_types (
		name            text PRIMARY KEY,
		from_gocardless boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_bank_accounts (
		name            text PRIMARY KEY,
		account_name    text NOT NULL,
		bank            text NOT NULL DEFAULT '',
		account_type    text NOT NULL DEFAULT '',
		account_no      text NOT NULL DEFAULT '',
		company         text NOT NULL DEFAULT '',
		iban            text NOT NULL DEFAULT '',
		is_default      boolean NOT NULL DEFAULT false,
		party_type      text NOT NULL DEFAULT '',
		party           text NOT NULL DEFAULT '',
		from_gocardless boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS currencies (
		name            text PRIMARY KEY,
		enabled         boolean NOT NULL DEFAULT true,
		from_gocardless boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS parties (
		party_type           text NOT NULL,
		name                 text NOT NULL,
		party_group          text NOT NULL DEFAULT '',
		territory            text NOT NULL DEFAULT '',
		kind                 text NOT NULL DEFAULT '',
		default_bank_account text NOT NULL DEFAULT '',
		from_gocardless      boolean NOT NULL DEFAULT false,
		PRIMARY KEY (party_type, name)
	)`,
	`CREATE TABLE IF NOT EXISTS bank_transactions (
		name             text PRIMARY KEY,
		date             timestamptz NOT NULL,
		status           text NOT NULL,
		bank_account     text NOT NULL,
		deposit          numeric NOT NULL DEFAULT 0,
		withdrawal       numeric NOT NULL DEFAULT 0,
		currency         text NOT NULL,
		description      text NOT NULL DEFAULT '',
		information      text NOT NULL DEFAULT '',
		reference_number text NOT NULL DEFAULT '',
		transaction_id   text NOT NULL UNIQUE,
		party_type       text NOT NULL DEFAULT '',
		party            text NOT NULL DEFAULT '',
		from_gocardless  boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS sync_logs (
		id           text PRIMARY KEY,
		bank         text NOT NULL,
		account      text NOT NULL,
		from_date    timestamptz NOT NULL,
		to_date      timestamptz NOT NULL,
		sync_trigger text NOT NULL,
		status       text NOT NULL,
		transactions integer NOT NULL DEFAULT 0,
		created      timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sync_logs_bank_account_created ON sync_logs (bank, account, created)`,
}
