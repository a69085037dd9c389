// Package postgres is the PostgreSQL Store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"

	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

const settingsID = "general"

// Store persists records in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Settings(ctx context.Context) (model.Settings, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM settings WHERE id = $1`, settingsID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	var cfg model.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveSettings(ctx context.Context, v model.Settings) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, settingsID, data)
	return err
}

func (s *Store) Access(ctx context.Context, company string) (model.Access, error) {
	var a model.Access
	err := s.db.GetContext(ctx, &a, `SELECT * FROM access WHERE company = $1`, company)
	return a, notFound(err)
}

func (s *Store) SaveAccess(ctx context.Context, a model.Access) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO access (company, secret_id, secret_key, access_token, access_expiry, refresh_token, refresh_expiry)
		VALUES (:company, :secret_id, :secret_key, :access_token, :access_expiry, :refresh_token, :refresh_expiry)
		ON CONFLICT (company) DO UPDATE SET
			secret_id = EXCLUDED.secret_id,
			secret_key = EXCLUDED.secret_key,
			access_token = EXCLUDED.access_token,
			access_expiry = EXCLUDED.access_expiry,
			refresh_token = EXCLUDED.refresh_token,
			refresh_expiry = EXCLUDED.refresh_expiry`, a)
	return err
}

func (s *Store) Company(ctx context.Context, name string) (model.Company, error) {
	var c model.Company
	err := s.db.GetContext(ctx, &c, `SELECT * FROM companies WHERE name = $1`, name)
	return c, notFound(err)
}

func (s *Store) SaveCompany(ctx context.Context, c model.Company) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO companies (name, country, default_currency) VALUES (:name, :country, :default_currency)
		ON CONFLICT (name) DO UPDATE SET country = EXCLUDED.country, default_currency = EXCLUDED.default_currency`, c)
	return err
}

func (s *Store) Country(ctx context.Context, name string) (model.Country, error) {
	var c model.Country
	err := s.db.GetContext(ctx, &c, `SELECT * FROM countries WHERE name = $1`, name)
	return c, notFound(err)
}

func (s *Store) SaveCountry(ctx context.Context, c model.Country) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO countries (name, code) VALUES (:name, :code)
		ON CONFLICT (name) DO UPDATE SET code = EXCLUDED.code`, c)
	return err
}

const accountColumns = `parent, account, account_id, account_currency, status, account_type, account_no,
				iban, balances, last_sync, bank_account_ref`

func loadAccounts(ctx context.Context, q sqlx.QueryerContext, banks []model.Bank) error {
	for i := range banks {
		var rows []model.BankAccount
		err := sqlx.SelectContext(ctx, q, &rows, `
			SELECT `+accountColumns+`
			FROM bank_accounts WHERE parent = $1 ORDER BY idx`, banks[i].Name)
		if err != nil {
			return fmt.Errorf("loading accounts of %s: %w", banks[i].Name, err)
		}
		banks[i].Accounts = rows
	}
	return nil
}

func (s *Store) Bank(ctx context.Context, name string) (model.Bank, error) {
	var b model.Bank
	if err := s.db.GetContext(ctx, &b, `SELECT * FROM banks WHERE name = $1`, name); err != nil {
		return b, notFound(err)
	}
	banks := []model.Bank{b}
	if err := loadAccounts(ctx, s.db, banks); err != nil {
		return b, err
	}
	return banks[0], nil
}

func (s *Store) Banks(ctx context.Context, f store.BankFilter) ([]model.Bank, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Company != "" {
		where = append(where, "company = "+arg(f.Company))
	}
	if f.Enabled {
		where = append(where, "NOT disabled")
	}
	if f.AutoSync {
		where = append(where, "auto_sync")
	}
	if f.AuthStatus != "" {
		where = append(where, "auth_status = "+arg(string(f.AuthStatus)))
	}
	if f.DocStatus != nil {
		where = append(where, "docstatus = "+arg(int(*f.DocStatus)))
	}

	query := `SELECT * FROM banks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"

	var banks []model.Bank
	if err := s.db.SelectContext(ctx, &banks, query, args...); err != nil {
		return nil, fmt.Errorf("listing banks: %w", err)
	}
	if err := loadAccounts(ctx, s.db, banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (s *Store) SaveBank(ctx context.Context, b model.Bank) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeBank(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateBank locks the bank row for the whole read-modify-write, so it
// waits for running UpdateBankAccount calls of the bank and they wait for it.
func (s *Store) UpdateBank(ctx context.Context, name string, fn func(*model.Bank) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var b model.Bank
	if err := tx.GetContext(ctx, &b, `SELECT * FROM banks WHERE name = $1 FOR UPDATE`, name); err != nil {
		return notFound(err)
	}
	banks := []model.Bank{b}
	if err := loadAccounts(ctx, tx, banks); err != nil {
		return err
	}
	b = banks[0]
	if err := fn(&b); err != nil {
		return err
	}
	b.Name = name
	if err := writeBank(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateBankAccount shares the bank row lock with other account updates and
// locks its own account row.
func (s *Store) UpdateBankAccount(ctx context.Context, bank, account string, fn func(*model.BankAccount) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM banks WHERE name = $1 FOR SHARE`, bank); err != nil {
		return notFound(err)
	}
	var row model.BankAccount
	err = tx.GetContext(ctx, &row, `SELECT `+accountColumns+`
		FROM bank_accounts WHERE parent = $1 AND account = $2 FOR UPDATE`, bank, account)
	if err != nil {
		return notFound(err)
	}
	if err := fn(&row); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE bank_accounts SET account_id = $3, account_currency = $4, status = $5, account_type = $6,
			account_no = $7, iban = $8, balances = $9, last_sync = $10, bank_account_ref = $11
		WHERE parent = $1 AND account = $2`,
		bank, account, row.AccountID, row.Currency, string(row.Status), row.AccountType,
		row.AccountNo, row.IBAN, row.Balances, row.LastSync, row.BankAccountRef)
	if err != nil {
		return fmt.Errorf("updating account %s of %s: %w", account, bank, err)
	}
	return tx.Commit()
}

func writeBank(ctx context.Context, tx *sqlx.Tx, b model.Bank) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO banks (name, company, country, bank, bank_id, transaction_days, auth_id, auth_expiry,
			auth_status, auto_sync, disabled, docstatus, bank_ref)
		VALUES (:name, :company, :country, :bank, :bank_id, :transaction_days, :auth_id, :auth_expiry,
			:auth_status, :auto_sync, :disabled, :docstatus, :bank_ref)
		ON CONFLICT (name) DO UPDATE SET
			company = EXCLUDED.company,
			country = EXCLUDED.country,
			bank = EXCLUDED.bank,
			bank_id = EXCLUDED.bank_id,
			transaction_days = EXCLUDED.transaction_days,
			auth_id = EXCLUDED.auth_id,
			auth_expiry = EXCLUDED.auth_expiry,
			auth_status = EXCLUDED.auth_status,
			auto_sync = EXCLUDED.auto_sync,
			disabled = EXCLUDED.disabled,
			docstatus = EXCLUDED.docstatus,
			bank_ref = EXCLUDED.bank_ref`, b)
	if err != nil {
		return fmt.Errorf("saving bank %s: %w", b.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bank_accounts WHERE parent = $1`, b.Name); err != nil {
		return fmt.Errorf("clearing accounts of %s: %w", b.Name, err)
	}
	for i, a := range b.Accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_accounts (parent, idx, account, account_id, account_currency, status, account_type,
				account_no, iban, balances, last_sync, bank_account_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			b.Name, i, a.Account, a.AccountID, a.Currency, string(a.Status), a.AccountType,
			a.AccountNo, a.IBAN, a.Balances, a.LastSync, a.BankAccountRef)
		if err != nil {
			return fmt.Errorf("saving account %s: %w", a.Account, err)
		}
	}
	return nil
}

func (s *Store) DeleteBank(ctx context.Context, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM banks WHERE name = $1`, name))
}

func (s *Store) LedgerBank(ctx context.Context, name string) (model.LedgerBank, error) {
	var b model.LedgerBank
	err := s.db.GetContext(ctx, &b, `SELECT * FROM ledger_banks WHERE name = $1`, name)
	return b, notFound(err)
}

func (s *Store) SaveLedgerBank(ctx context.Context, b model.LedgerBank) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO ledger_banks (name, from_gocardless) VALUES (:name, :from_gocardless)
		ON CONFLICT (name) DO UPDATE SET from_gocardless = EXCLUDED.from_gocardless`, b)
	return err
}

func (s *Store) DeleteLedgerBank(ctx context.Context, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM ledger_banks WHERE name = $1`, name))
}

func (s *Store) BankAccountType(ctx context.Context, name string) (model.BankAccountType, error) {
	var t model.BankAccountType
	err := s.db.GetContext(ctx, &t, `SELECT * FROM bank_account_types WHERE name = $1`, name)
	return t, notFound(err)
}

func (s *Store) SaveBankAccountType(ctx context.Context, t model.BankAccountType) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bank_account_types (name, from_gocardless) VALUES (:name, :from_gocardless)
		ON CONFLICT (name) DO UPDATE SET from_gocardless = EXCLUDED.from_gocardless`, t)
	return err
}

func (s *Store) LedgerBankAccount(ctx context.Context, name string) (model.LedgerBankAccount, error) {
	var a model.LedgerBankAccount
	err := s.db.GetContext(ctx, &a, `SELECT * FROM ledger_bank_accounts WHERE name = $1`, name)
	return a, notFound(err)
}

func (s *Store) LedgerBankAccounts(ctx context.Context, bank, company string) ([]model.LedgerBankAccount, error) {
	var out []model.LedgerBankAccount
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM ledger_bank_accounts
		WHERE ($1 = '' OR bank = $1) AND ($2 = '' OR company = $2)
		ORDER BY name`, bank, company)
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	return out, nil
}

func (s *Store) SaveLedgerBankAccount(ctx context.Context, a model.LedgerBankAccount) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO ledger_bank_accounts (name, account_name, bank, account_type, account_no, company, iban,
			is_default, party_type, party, from_gocardless)
		VALUES (:name, :account_name, :bank, :account_type, :account_no, :company, :iban,
			:is_default, :party_type, :party, :from_gocardless)
		ON CONFLICT (name) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			bank = EXCLUDED.bank,
			account_type = EXCLUDED.account_type,
			account_no = EXCLUDED.account_no,
			company = EXCLUDED.company,
			iban = EXCLUDED.iban,
			is_default = EXCLUDED.is_default,
			party_type = EXCLUDED.party_type,
			party = EXCLUDED.party,
			from_gocardless = EXCLUDED.from_gocardless`, a)
	return err
}

func (s *Store) DeleteLedgerBankAccount(ctx context.Context, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM ledger_bank_accounts WHERE name = $1`, name))
}

func (s *Store) Currency(ctx context.Context, name string) (model.Currency, error) {
	var c model.Currency
	err := s.db.GetContext(ctx, &c, `SELECT * FROM currencies WHERE name = $1`, name)
	return c, notFound(err)
}

func (s *Store) SaveCurrency(ctx context.Context, c model.Currency) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO currencies (name, enabled, from_gocardless) VALUES (:name, :enabled, :from_gocardless)
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, from_gocardless = EXCLUDED.from_gocardless`, c)
	return err
}

func (s *Store) DeleteCurrency(ctx context.Context, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM currencies WHERE name = $1`, name))
}

func (s *Store) Party(ctx context.Context, typ model.PartyType, name string) (model.Party, error) {
	var p model.Party
	err := s.db.GetContext(ctx, &p, `SELECT * FROM parties WHERE party_type = $1 AND name = $2`, string(typ), name)
	return p, notFound(err)
}

func (s *Store) SaveParty(ctx context.Context, p model.Party) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO parties (party_type, name, party_group, territory, kind, default_bank_account, from_gocardless)
		VALUES (:party_type, :name, :party_group, :territory, :kind, :default_bank_account, :from_gocardless)
		ON CONFLICT (party_type, name) DO UPDATE SET
			party_group = EXCLUDED.party_group,
			territory = EXCLUDED.territory,
			kind = EXCLUDED.kind,
			default_bank_account = EXCLUDED.default_bank_account,
			from_gocardless = EXCLUDED.from_gocardless`, p)
	return err
}

func (s *Store) DeleteParty(ctx context.Context, typ model.PartyType, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM parties WHERE party_type = $1 AND name = $2`, string(typ), name))
}

func (s *Store) TransactionExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM bank_transactions WHERE transaction_id = $1)`, transactionID)
	return exists, err
}

func (s *Store) InsertTransaction(ctx context.Context, t model.BankTransaction) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO bank_transactions (name, date, status, bank_account, deposit, withdrawal, currency, description,
			information, reference_number, transaction_id, party_type, party, from_gocardless)
		VALUES (:name, :date, :status, :bank_account, :deposit, :withdrawal, :currency, :description,
			:information, :reference_number, :transaction_id, :party_type, :party, :from_gocardless)`, t)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) Transactions(ctx context.Context, f store.TransactionFilter) ([]model.BankTransaction, error) {
	query := `SELECT * FROM bank_transactions WHERE ($1 = false OR from_gocardless)`
	args := []any{f.FromGocardless}
	if len(f.BankAccounts) > 0 {
		query += ` AND bank_account = ANY($2)`
		args = append(args, f.BankAccounts)
	}
	query += ` ORDER BY date, name`

	var out []model.BankTransaction
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, name string) error {
	return affected(s.db.ExecContext(ctx, `DELETE FROM bank_transactions WHERE name = $1`, name))
}

func (s *Store) InsertSyncLog(ctx context.Context, l model.SyncLog) error {
	if l.Created.IsZero() {
		l.Created = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sync_logs (id, bank, account, from_date, to_date, sync_trigger, status, transactions, created)
		VALUES (:id, :bank, :account, :from_date, :to_date, :sync_trigger, :status, :transactions, :created)`, l)
	return err
}

func (s *Store) UpdateSyncLog(ctx context.Context, l model.SyncLog) error {
	return affected(s.db.NamedExecContext(ctx, `
		UPDATE sync_logs SET status = :status, transactions = :transactions WHERE id = :id`, l))
}

func (s *Store) CountSyncLogs(ctx context.Context, bank, account string, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT count(*) FROM sync_logs WHERE bank = $1 AND account = $2 AND created >= $3`, bank, account, since)
	return n, err
}

func (s *Store) DeleteSyncLogs(ctx context.Context, bank string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_logs WHERE bank = $1`, bank)
	return err
}
