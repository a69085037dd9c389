// Package clean removes the ledger records synced for a bank once the bank
// is deleted.
package clean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

const component = "clean"

// Service deletes synced records according to the clean settings.
type Service struct {
	store      store.Store
	currencies *currency.Service
	activity   *activitylog.Recorder
	logger     *slog.Logger
}

// NewService creates a Service. currencies may be nil.
func NewService(st store.Store, currencies *currency.Service, activity *activitylog.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, currencies: currencies, activity: activity, logger: logger}
}

// trash is what the synced transactions of the deleted accounts refer to.
type trash struct {
	currencies []string
	suppliers  []string
	customers  []string
}

// CleanTrash deletes what was synced for the bank name: the transactions
// of bankAccounts, the ledger bank accounts and bank, and the currencies
// and parties those transactions used, each only when its clean setting is
// on and the record was created by the sync. The bank's sync logs are
// always deleted. Failures to delete single records are recorded and do
// not stop the rest.
func (s *Service) CleanTrash(ctx context.Context, name, ledgerBank, company string, bankAccounts []string) error {
	cfg, err := s.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	var errs []error
	var refs *trash
	if len(bankAccounts) > 0 {
		if cfg.CleanCurrency || cfg.CleanSupplier || cfg.CleanCustomer || cfg.CleanBankTransaction {
			txns, err := s.store.Transactions(ctx, store.TransactionFilter{BankAccounts: bankAccounts, FromGocardless: true})
			if err != nil {
				return fmt.Errorf("loading transactions of %s: %w", name, err)
			}
			refs = collect(txns)
			if cfg.CleanBankTransaction {
				errs = append(errs, s.cleanTransactions(ctx, txns)...)
			}
		}
		if cfg.CleanBankAccount {
			errs = append(errs, s.cleanBankAccounts(ctx, bankAccounts, ledgerBank, company)...)
		}
	}

	if ledgerBank != "" && cfg.CleanBank {
		if err := s.cleanLedgerBank(ctx, ledgerBank); err != nil {
			errs = append(errs, err)
		}
	}

	if refs != nil {
		if cfg.CleanCurrency {
			errs = append(errs, s.cleanCurrencies(ctx, refs.currencies)...)
		}
		if cfg.CleanSupplier {
			errs = append(errs, s.cleanParties(ctx, model.PartySupplier, refs.suppliers)...)
		}
		if cfg.CleanCustomer {
			errs = append(errs, s.cleanParties(ctx, model.PartyCustomer, refs.customers)...)
		}
	}

	if err := s.store.DeleteSyncLogs(ctx, name); err != nil {
		errs = append(errs, fmt.Errorf("deleting sync logs of %s: %w", name, err))
	}

	err = errors.Join(errs...)
	if err != nil {
		s.activity.Error(component, "clean_trash", name, err)
		return err
	}
	s.activity.Info(component, "clean_trash", name, "trash of deleted bank cleaned")
	return nil
}

func collect(txns []model.BankTransaction) *trash {
	t := &trash{}
	for _, bt := range txns {
		if bt.Currency != "" {
			t.currencies = append(t.currencies, bt.Currency)
		}
		if bt.Party == "" {
			continue
		}
		switch bt.PartyType {
		case model.PartySupplier:
			t.suppliers = append(t.suppliers, bt.Party)
		case model.PartyCustomer:
			t.customers = append(t.customers, bt.Party)
		}
	}
	t.currencies = unique(t.currencies)
	t.suppliers = unique(t.suppliers)
	t.customers = unique(t.customers)
	return t
}

func (s *Service) cleanTransactions(ctx context.Context, txns []model.BankTransaction) []error {
	var errs []error
	for _, bt := range txns {
		if err := s.store.DeleteTransaction(ctx, bt.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting bank transaction %s: %w", bt.Name, err))
		}
	}
	s.logger.Debug("bank transactions cleaned", "count", len(txns))
	return errs
}

func (s *Service) cleanBankAccounts(ctx context.Context, names []string, ledgerBank, company string) []error {
	var errs []error
	for _, name := range names {
		la, err := s.store.LedgerBankAccount(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("loading bank account %s: %w", name, err))
			continue
		}
		if !la.FromGocardless || la.Company != company || (ledgerBank != "" && la.Bank != ledgerBank) {
			continue
		}
		if err := s.store.DeleteLedgerBankAccount(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting bank account %s: %w", name, err))
		}
	}
	return errs
}

func (s *Service) cleanLedgerBank(ctx context.Context, name string) error {
	lb, err := s.store.LedgerBank(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading bank %s: %w", name, err)
	}
	if !lb.FromGocardless {
		return nil
	}
	if err := s.store.DeleteLedgerBank(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting bank %s: %w", name, err)
	}
	return nil
}

func (s *Service) cleanCurrencies(ctx context.Context, names []string) []error {
	var errs []error
	for _, name := range names {
		c, err := s.store.Currency(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("loading currency %s: %w", name, err))
			continue
		}
		if !c.FromGocardless {
			continue
		}
		if err := s.store.DeleteCurrency(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting currency %s: %w", name, err))
			continue
		}
		if s.currencies != nil {
			s.currencies.Forget(name)
		}
	}
	return errs
}

func (s *Service) cleanParties(ctx context.Context, typ model.PartyType, names []string) []error {
	var errs []error
	for _, name := range names {
		p, err := s.store.Party(ctx, typ, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("loading %s %s: %w", typ, name, err))
			continue
		}
		if !p.FromGocardless {
			continue
		}
		if err := s.store.DeleteParty(ctx, typ, name); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deleting %s %s: %w", typ, name, err))
		}
	}
	return errs
}

func unique(names []string) []string {
	slices.Sort(names)
	return slices.Compact(names)
}
