// Package bankaccount links the accounts of a synced bank to ledger bank
// accounts and maintains the party bank accounts found on transactions.
package bankaccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

var (
	// ErrInvalidArgs is returned when a required argument is empty.
	ErrInvalidArgs = errors.New("arguments passed are invalid")
	// ErrUnknownAccount is returned when an account is not an unlinked
	// account of the bank.
	ErrUnknownAccount = errors.New("bank account is not part of the bank")
)

const component = "bankaccount"

// Service manages ledger bank accounts.
type Service struct {
	store      store.Store
	currencies *currency.Service
	notifier   events.Notifier
	activity   *activitylog.Recorder
}

// NewService creates a Service.
func NewService(st store.Store, currencies *currency.Service, notifier events.Notifier, activity *activitylog.Recorder) *Service {
	return &Service{store: st, currencies: currencies, notifier: notifier, activity: activity}
}

// StoreBankAccount creates or updates the ledger bank account for account
// of bank name and links the two. The first ledger account of the bank and
// company becomes the default one. It returns the ledger account name.
func (s *Service) StoreBankAccount(ctx context.Context, name, account string) (string, error) {
	if name == "" || account == "" {
		return "", ErrInvalidArgs
	}

	b, row, err := s.unlinkedAccount(ctx, name, account)
	if err != nil {
		return "", err
	}
	ledgerBank := ledgerBankOf(b)

	existing, err := s.store.LedgerBankAccounts(ctx, ledgerBank, b.Company)
	if err != nil {
		return "", fmt.Errorf("listing bank accounts of %s: %w", ledgerBank, err)
	}
	isDefault := true
	for _, a := range existing {
		if a.IsDefault {
			isDefault = false
			break
		}
	}

	if row.AccountType != "" {
		if err := s.AddAccountType(ctx, row.AccountType); err != nil {
			return "", s.fail(ctx, b.Name, account, fmt.Errorf("creating bank account type %q for %q: %w", row.AccountType, account, err))
		}
	}
	if row.Currency != "" {
		if err := s.currencies.Ensure(ctx, row.Currency); err != nil {
			return "", s.fail(ctx, b.Name, account, err)
		}
	}

	ledgerName := id.BankAccountName(row.Account, ledgerBank)
	la, err := s.store.LedgerBankAccount(ctx, ledgerName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		la = model.LedgerBankAccount{Name: ledgerName, IsDefault: isDefault, FromGocardless: true}
	case err != nil:
		return "", fmt.Errorf("loading bank account %s: %w", ledgerName, err)
	}
	la.AccountName = row.Account
	la.Bank = ledgerBank
	la.AccountType = row.AccountType
	la.AccountNo = row.AccountNo
	la.Company = b.Company
	la.IBAN = row.IBAN
	if err := s.store.SaveLedgerBankAccount(ctx, la); err != nil {
		return "", s.fail(ctx, b.Name, account, fmt.Errorf("saving bank account %q of bank %q: %w", row.Account, ledgerBank, err))
	}

	if err := s.link(ctx, b.Name, account, ledgerName); err != nil {
		return "", err
	}
	s.activity.Info(component, "store", ledgerName, fmt.Sprintf("linked %s of %s", account, b.Name))
	return ledgerName, nil
}

// ChangeBankAccount links account of bank name to the existing ledger bank
// account bankAccount.
func (s *Service) ChangeBankAccount(ctx context.Context, name, account, bankAccount string) error {
	if name == "" || account == "" || bankAccount == "" {
		return ErrInvalidArgs
	}

	b, _, err := s.unlinkedAccount(ctx, name, account)
	if err != nil {
		return err
	}
	if _, err := s.store.LedgerBankAccount(ctx, bankAccount); err != nil {
		return s.fail(ctx, b.Name, account, fmt.Errorf("bank account %q: %w", bankAccount, err))
	}

	if err := s.link(ctx, b.Name, account, bankAccount); err != nil {
		return err
	}
	s.activity.Info(component, "change", bankAccount, fmt.Sprintf("linked %s of %s", account, b.Name))
	return nil
}

// link points account of bank name at the ledger bank account ref unless
// it got linked in the meantime.
func (s *Service) link(ctx context.Context, name, account, ref string) error {
	err := s.store.UpdateBankAccount(ctx, name, account, func(row *model.BankAccount) error {
		if row.BankAccountRef != "" {
			return fmt.Errorf("%w: %q of %q", ErrUnknownAccount, account, name)
		}
		row.BankAccountRef = ref
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.fail(ctx, name, account, fmt.Errorf("%w: %q of %q", ErrUnknownAccount, account, name))
	case errors.Is(err, ErrUnknownAccount):
		return s.fail(ctx, name, account, err)
	case err != nil:
		return fmt.Errorf("saving account %s of %s: %w", account, name, err)
	}
	return nil
}

// unlinkedAccount loads bank name and returns it with a pointer into its
// accounts for account, which must not be linked yet.
func (s *Service) unlinkedAccount(ctx context.Context, name, account string) (model.Bank, *model.BankAccount, error) {
	b, err := s.store.Bank(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return b, nil, s.fail(ctx, name, "", fmt.Errorf("gocardless bank %q: %w", name, err))
	}
	if err != nil {
		return b, nil, fmt.Errorf("loading bank %s: %w", name, err)
	}
	row := b.Account(account)
	if row == nil || row.BankAccountRef != "" {
		return b, nil, s.fail(ctx, name, account, fmt.Errorf("%w: %q of %q", ErrUnknownAccount, account, name))
	}
	return b, row, nil
}

// ListBankAccounts returns every ledger bank account.
func (s *Service) ListBankAccounts(ctx context.Context) ([]model.LedgerBankAccount, error) {
	accounts, err := s.store.LedgerBankAccounts(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	return accounts, nil
}

// AccountData is the sync state of a ledger bank account. Bank, company,
// account and last sync are only set when the account is ready.
type AccountData struct {
	BankAccount string              `json:"bank_account"`
	Status      model.AccountStatus `json:"status"`
	Bank        string              `json:"bank,omitempty"`
	Company     string              `json:"company,omitempty"`
	Account     string              `json:"account,omitempty"`
	LastSync    *time.Time          `json:"last_sync,omitempty"`
}

// GetBankAccountData returns the sync state of the bank account linked to
// the ledger bank account bankAccount.
func (s *Service) GetBankAccountData(ctx context.Context, bankAccount string) (AccountData, error) {
	if bankAccount == "" {
		return AccountData{}, ErrInvalidArgs
	}
	cfg, err := s.store.Settings(ctx)
	if err != nil {
		return AccountData{}, fmt.Errorf("loading settings: %w", err)
	}
	if !cfg.Enabled {
		return AccountData{}, access.ErrDisabled
	}

	banks, err := s.store.Banks(ctx, store.BankFilter{Enabled: true})
	if err != nil {
		return AccountData{}, fmt.Errorf("listing banks: %w", err)
	}
	for _, b := range banks {
		row := b.AccountByRef(bankAccount)
		if row == nil {
			continue
		}
		data := AccountData{BankAccount: bankAccount, Status: row.Status}
		if row.Status == model.AccountReady {
			data.Bank = b.Name
			data.Company = b.Company
			data.Account = row.Account
			if !row.LastSync.IsZero() {
				last := row.LastSync
				data.LastSync = &last
			}
		}
		return data, nil
	}
	return AccountData{}, fmt.Errorf("bank account %q is disabled or doesn't exist: %w", bankAccount, store.ErrNotFound)
}

// AddPartyBankAccount updates the bank account "<party> - <bank>" of a
// supplier or customer, creating it when create is set, and returns its name.
// It returns an empty name when the account is missing and create is unset.
// Invalid IBANs are dropped.
func (s *Service) AddPartyBankAccount(ctx context.Context, party string, partyType model.PartyType, bank, iban string, create bool) (string, error) {
	if party == "" || bank == "" {
		return "", ErrInvalidArgs
	}
	if iban != "" && !ValidIBAN(iban) {
		iban = ""
	}

	name := id.BankAccountName(party, bank)
	la, err := s.store.LedgerBankAccount(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !create {
			return "", nil
		}
		la = model.LedgerBankAccount{Name: name, AccountName: party, Bank: bank, FromGocardless: true}
	case err != nil:
		return "", fmt.Errorf("loading bank account %s: %w", name, err)
	}
	la.IBAN = iban
	la.PartyType = partyType
	la.Party = party
	if err := s.store.SaveLedgerBankAccount(ctx, la); err != nil {
		s.activity.Error(component, "add_party_bank_account", name, err)
		return "", fmt.Errorf("saving party bank account %s: %w", name, err)
	}
	return name, nil
}

// AddAccountType creates the bank account type name when it is missing.
func (s *Service) AddAccountType(ctx context.Context, name string) error {
	_, err := s.store.BankAccountType(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.store.SaveBankAccountType(ctx, model.BankAccountType{Name: name, FromGocardless: true})
}

func (s *Service) fail(ctx context.Context, bank, account string, err error) error {
	s.activity.Error(component, "link", bank, err)
	s.notifier.Notify(ctx, events.Event{Kind: events.BankError, Bank: bank, Account: account, Message: err.Error()})
	return err
}

func ledgerBankOf(b model.Bank) string {
	if b.BankRef != "" {
		return b.BankRef
	}
	return b.BankName
}
