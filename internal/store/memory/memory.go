// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

type partyKey struct {
	typ  model.PartyType
	name string
}

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	settings     model.Settings
	access       map[string]model.Access
	companies    map[string]model.Company
	countries    map[string]model.Country
	banks        map[string]model.Bank
	ledgerBanks  map[string]model.LedgerBank
	accountTypes map[string]model.BankAccountType
	bankAccounts map[string]model.LedgerBankAccount
	currencies   map[string]model.Currency
	parties      map[partyKey]model.Party
	transactions map[string]model.BankTransaction
	syncLogs     map[string]model.SyncLog
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		access:       make(map[string]model.Access),
		companies:    make(map[string]model.Company),
		countries:    make(map[string]model.Country),
		banks:        make(map[string]model.Bank),
		ledgerBanks:  make(map[string]model.LedgerBank),
		accountTypes: make(map[string]model.BankAccountType),
		bankAccounts: make(map[string]model.LedgerBankAccount),
		currencies:   make(map[string]model.Currency),
		parties:      make(map[partyKey]model.Party),
		transactions: make(map[string]model.BankTransaction),
		syncLogs:     make(map[string]model.SyncLog),
	}
}

func get[K comparable, V any](mu *sync.Mutex, m map[K]V, k K) (V, error) {
	mu.Lock()
	defer mu.Unlock()
	v, ok := m[k]
	if !ok {
		var zero V
		return zero, store.ErrNotFound
	}
	return v, nil
}

func put[K comparable, V any](mu *sync.Mutex, m map[K]V, k K, v V) error {
	mu.Lock()
	defer mu.Unlock()
	m[k] = v
	return nil
}

func del[K comparable, V any](mu *sync.Mutex, m map[K]V, k K) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[k]; !ok {
		return store.ErrNotFound
	}
	delete(m, k)
	return nil
}

func (s *Store) Settings(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, v model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = v
	return nil
}

func (s *Store) Access(_ context.Context, company string) (model.Access, error) {
	return get(&s.mu, s.access, company)
}

func (s *Store) SaveAccess(_ context.Context, a model.Access) error {
	return put(&s.mu, s.access, a.Company, a)
}

func (s *Store) Company(_ context.Context, name string) (model.Company, error) {
	return get(&s.mu, s.companies, name)
}

func (s *Store) SaveCompany(_ context.Context, c model.Company) error {
	return put(&s.mu, s.companies, c.Name, c)
}

func (s *Store) Country(_ context.Context, name string) (model.Country, error) {
	return get(&s.mu, s.countries, name)
}

func (s *Store) SaveCountry(_ context.Context, c model.Country) error {
	return put(&s.mu, s.countries, c.Name, c)
}

func cloneBank(b model.Bank) model.Bank {
	b.Accounts = slices.Clone(b.Accounts)
	return b
}

func (s *Store) Bank(_ context.Context, name string) (model.Bank, error) {
	b, err := get(&s.mu, s.banks, name)
	if err != nil {
		return b, err
	}
	return cloneBank(b), nil
}

func (s *Store) Banks(_ context.Context, f store.BankFilter) ([]model.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bank
	for _, b := range s.banks {
		if f.Match(b) {
			out = append(out, cloneBank(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveBank(_ context.Context, b model.Bank) error {
	b = cloneBank(b)
	for i := range b.Accounts {
		b.Accounts[i].Parent = b.Name
	}
	return put(&s.mu, s.banks, b.Name, b)
}

func (s *Store) UpdateBank(_ context.Context, name string, fn func(*model.Bank) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[name]
	if !ok {
		return store.ErrNotFound
	}
	b = cloneBank(b)
	if err := fn(&b); err != nil {
		return err
	}
	b.Name = name
	for i := range b.Accounts {
		b.Accounts[i].Parent = name
	}
	s.banks[name] = b
	return nil
}

func (s *Store) UpdateBankAccount(_ context.Context, bank, account string, fn func(*model.BankAccount) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[bank]
	if !ok {
		return store.ErrNotFound
	}
	b = cloneBank(b)
	row := b.Account(account)
	if row == nil {
		return store.ErrNotFound
	}
	if err := fn(row); err != nil {
		return err
	}
	row.Parent, row.Account = bank, account
	s.banks[bank] = b
	return nil
}

func (s *Store) DeleteBank(_ context.Context, name string) error {
	return del(&s.mu, s.banks, name)
}

func (s *Store) LedgerBank(_ context.Context, name string) (model.LedgerBank, error) {
	return get(&s.mu, s.ledgerBanks, name)
}

func (s *Store) SaveLedgerBank(_ context.Context, b model.LedgerBank) error {
	return put(&s.mu, s.ledgerBanks, b.Name, b)
}

func (s *Store) DeleteLedgerBank(_ context.Context, name string) error {
	return del(&s.mu, s.ledgerBanks, name)
}

func (s *Store) BankAccountType(_ context.Context, name string) (model.BankAccountType, error) {
	return get(&s.mu, s.accountTypes, name)
}

func (s *Store) SaveBankAccountType(_ context.Context, t model.BankAccountType) error {
	return put(&s.mu, s.accountTypes, t.Name, t)
}

func (s *Store) LedgerBankAccount(_ context.Context, name string) (model.LedgerBankAccount, error) {
	return get(&s.mu, s.bankAccounts, name)
}

func (s *Store) LedgerBankAccounts(_ context.Context, bank, company string) ([]model.LedgerBankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerBankAccount
	for _, a := range s.bankAccounts {
		if bank != "" && a.Bank != bank {
			continue
		}
		if company != "" && a.Company != company {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveLedgerBankAccount(_ context.Context, a model.LedgerBankAccount) error {
	return put(&s.mu, s.bankAccounts, a.Name, a)
}

func (s *Store) DeleteLedgerBankAccount(_ context.Context, name string) error {
	return del(&s.mu, s.bankAccounts, name)
}

func (s *Store) Currency(_ context.Context, name string) (model.Currency, error) {
	return get(&s.mu, s.currencies, name)
}

func (s *Store) SaveCurrency(_ context.Context, c model.Currency) error {
	return put(&s.mu, s.currencies, c.Name, c)
}

func (s *Store) DeleteCurrency(_ context.Context, name string) error {
	return del(&s.mu, s.currencies, name)
}

func (s *Store) Party(_ context.Context, typ model.PartyType, name string) (model.Party, error) {
	return get(&s.mu, s.parties, partyKey{typ, name})
}

func (s *Store) SaveParty(_ context.Context, p model.Party) error {
	return put(&s.mu, s.parties, partyKey{p.Type, p.Name}, p)
}

func (s *Store) DeleteParty(_ context.Context, typ model.PartyType, name string) error {
	return del(&s.mu, s.parties, partyKey{typ, name})
}

func (s *Store) TransactionExists(_ context.Context, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertTransaction(_ context.Context, t model.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions {
		if existing.TransactionID == t.TransactionID {
			return store.ErrDuplicate
		}
	}
	s.transactions[t.Name] = t
	return nil
}

func (s *Store) Transactions(_ context.Context, f store.TransactionFilter) ([]model.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BankTransaction
	for _, t := range s.transactions {
		if len(f.BankAccounts) > 0 && !slices.Contains(f.BankAccounts, t.BankAccount) {
			continue
		}
		if f.FromGocardless && !t.FromGocardless {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, name string) error {
	return del(&s.mu, s.transactions, name)
}

func (s *Store) InsertSyncLog(_ context.Context, l model.SyncLog) error {
	return put(&s.mu, s.syncLogs, l.ID, l)
}

func (s *Store) UpdateSyncLog(_ context.Context, l model.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.syncLogs[l.ID]; !ok {
		return store.ErrNotFound
	}
	s.syncLogs[l.ID] = l
	return nil
}

func (s *Store) CountSyncLogs(_ context.Context, bank, account string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.syncLogs {
		if l.Bank == bank && l.Account == account && !l.Created.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteSyncLogs(_ context.Context, bank string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.syncLogs {
		if l.Bank == bank {
			delete(s.syncLogs, id)
		}
	}
	return nil
}

// SyncLogs returns every sync log of bank, oldest first.
func (s *Store) SyncLogs(bank string) []model.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SyncLog
	for _, l := range s.syncLogs {
		if l.Bank == bank {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}
