// Package bank links institutions to companies through requisitions and
// keeps the accounts of linked banks in step with the API.
package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

var (
	// ErrInvalidArgs is returned when a required argument is empty.
	ErrInvalidArgs = errors.New("arguments passed are invalid")
	// ErrNoCountry is returned when a company has no country with an ISO code.
	ErrNoCountry = errors.New("company doesn't have a valid country")
	// ErrUnsupportedBank is returned when an institution is not offered in the company's country.
	ErrUnsupportedBank = errors.New("bank isn't supported by gocardless")
	// ErrNotSubmitted is returned when authorizing a draft bank.
	ErrNotSubmitted = errors.New("bank can't be authorized before being submitted")
	// ErrCancelled is returned when authorizing or syncing a cancelled bank.
	ErrCancelled = errors.New("bank is cancelled")
	// ErrSubmitted is returned when deleting a submitted bank.
	ErrSubmitted = errors.New("submitted bank can't be removed")
	// ErrAuthMismatch is returned when authorization data names another institution.
	ErrAuthMismatch = errors.New("authorization data for bank is invalid")
	// ErrUnknownReference is returned by the redirect callback for references it did not hand out.
	ErrUnknownReference = errors.New("unknown or expired authorization reference")
)

const (
	component = "bank"

	institutionsTTL = 7 * 24 * time.Hour
	pendingTTL      = 24 * time.Hour
)

// Cleaner removes the ledger records synced for a deleted bank.
type Cleaner interface {
	CleanTrash(ctx context.Context, name, ledgerBank, company string, bankAccounts []string) error
}

// Options configures a Service.
type Options struct {
	// RedirectURL is the base of the requisition redirect. The bank name
	// is appended as the last path segment.
	RedirectURL  string
	UserLanguage string
	// FetchWorkers bounds the concurrent account fetches of SyncBank.
	FetchWorkers int
}

type pendingAuth struct {
	name   string
	bank   string
	bankID string
	authID string
	expiry time.Time
}

// Service manages linked banks.
type Service struct {
	store    store.Store
	access   *access.Service
	runner   *jobs.Runner
	cleaner  Cleaner
	notifier events.Notifier
	activity *activitylog.Recorder
	logger   *slog.Logger
	opts     Options

	institutions *expirable.LRU[string, []gocardless.Institution]
	pending      *expirable.LRU[string, pendingAuth]
	now          func() time.Time
}

// NewService creates a Service.
func NewService(
	st store.Store,
	acc *access.Service,
	runner *jobs.Runner,
	cleaner Cleaner,
	notifier events.Notifier,
	activity *activitylog.Recorder,
	logger *slog.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 4
	}
	return &Service{
		store:        st,
		access:       acc,
		runner:       runner,
		cleaner:      cleaner,
		notifier:     notifier,
		activity:     activity,
		logger:       logger,
		opts:         opts,
		institutions: expirable.NewLRU[string, []gocardless.Institution](64, nil, institutionsTTL),
		pending:      expirable.NewLRU[string, pendingAuth](256, nil, pendingTTL),
		now:          time.Now,
	}
}

// CountryCode returns the ISO 3166 code of company's country.
func (s *Service) CountryCode(ctx context.Context, company string) (string, error) {
	c, err := s.store.Company(ctx, company)
	if err != nil {
		return "", fmt.Errorf("loading company %s: %w", company, err)
	}
	if c.Country == "" {
		return "", fmt.Errorf("%w: %q", ErrNoCountry, company)
	}
	country, err := s.store.Country(ctx, c.Country)
	if errors.Is(err, store.ErrNotFound) || (err == nil && country.Code == "") {
		return "", fmt.Errorf("%w: country %q of %q doesn't exist", ErrNoCountry, c.Country, company)
	}
	if err != nil {
		return "", fmt.Errorf("loading country %s: %w", c.Country, err)
	}
	return strings.ToUpper(country.Code), nil
}

// GetBanks returns the institutions available in the country of company.
// Lists are cached per country for a week.
func (s *Service) GetBanks(ctx context.Context, company string) ([]gocardless.Institution, error) {
	if company == "" {
		return nil, ErrInvalidArgs
	}
	code, err := s.CountryCode(ctx, company)
	if err != nil {
		return nil, err
	}
	if list, ok := s.institutions.Get(code); ok {
		return list, nil
	}

	client, err := s.access.Client(ctx, company)
	if err != nil {
		return nil, err
	}
	list, err := client.ListInstitutions(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		s.institutions.Add(code, list)
	}
	return list, nil
}

// ValidateBank fills the country, institution ID and transaction days of a
// draft bank from its company and the institution list.
func (s *Service) ValidateBank(ctx context.Context, b *model.Bank) error {
	if b.DocStatus != model.DocDraft {
		return nil
	}
	var errs []error
	if b.Company == "" {
		errs = append(errs, errors.New("a valid company is required"))
	}
	if b.BankName == "" {
		errs = append(errs, errors.New("a valid bank is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c, err := s.store.Company(ctx, b.Company)
	if err != nil {
		return fmt.Errorf("loading company %s: %w", b.Company, err)
	}
	b.Country = c.Country

	list, err := s.GetBanks(ctx, b.Company)
	if err != nil {
		return fmt.Errorf("unable to validate support for %q with gocardless: %w", b.BankName, err)
	}
	for _, inst := range list {
		if inst.Name != b.BankName {
			continue
		}
		b.BankID = inst.ID
		b.TransactionDays = int(inst.TransactionTotalDays)
		if b.TransactionDays < 1 {
			b.TransactionDays = model.DefaultTransactionDays
		}
		return nil
	}
	b.BankID = ""
	b.TransactionDays = model.DefaultTransactionDays
	return fmt.Errorf("%w: %q", ErrUnsupportedBank, b.BankName)
}

// CreateBank validates and stores a new draft bank. An empty name becomes
// "<bank> - <company>".
func (s *Service) CreateBank(ctx context.Context, b model.Bank) (model.Bank, error) {
	if b.Name == "" {
		b.Name = fmt.Sprintf("%s - %s", b.BankName, b.Company)
	}
	b.DocStatus = model.DocDraft
	b.AuthStatus = model.AuthUnlinked
	if err := s.checkEnabled(ctx); err != nil {
		return b, err
	}
	if err := s.ValidateBank(ctx, &b); err != nil {
		return b, err
	}
	if err := s.store.SaveBank(ctx, b); err != nil {
		return b, fmt.Errorf("saving bank %s: %w", b.Name, err)
	}
	return b, nil
}

// SubmitBank moves a draft bank to submitted.
func (s *Service) SubmitBank(ctx context.Context, name string) error {
	b, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	switch b.DocStatus {
	case model.DocSubmitted:
		return nil
	case model.DocCancelled:
		return fmt.Errorf("%w: %q", ErrCancelled, name)
	}
	if err := s.ValidateBank(ctx, &b); err != nil {
		return err
	}
	b.DocStatus = model.DocSubmitted
	return s.save(ctx, b)
}

// AuthRequest holds the arguments of GetBankAuth.
type AuthRequest struct {
	Name            string `json:"name"`
	RefID           string `json:"ref_id"`
	Company         string `json:"company"`
	Bank            string `json:"bank"`
	BankID          string `json:"bank_id"`
	TransactionDays int    `json:"transaction_days"`
}

// GetBankAuth creates an agreement and a requisition for an institution and
// returns the requisition, whose link the user follows to authorize access.
// The redirect returns to "<RedirectURL>/<name>".
func (s *Service) GetBankAuth(ctx context.Context, req AuthRequest) (*gocardless.Requisition, error) {
	if req.Name == "" || req.RefID == "" || req.Company == "" || req.Bank == "" || req.BankID == "" {
		return nil, ErrInvalidArgs
	}
	client, err := s.access.Client(ctx, req.Company)
	if err != nil {
		return nil, err
	}
	link, err := client.CreateLink(ctx, gocardless.LinkParams{
		InstitutionID:     req.BankID,
		Reference:         req.RefID,
		Redirect:          strings.TrimRight(s.opts.RedirectURL, "/") + "/" + url.PathEscape(req.Name),
		UserLanguage:      s.opts.UserLanguage,
		MaxHistoricalDays: req.TransactionDays,
	})
	if err != nil {
		s.activity.Error(component, "link", req.Name, err)
		return nil, err
	}

	s.pending.Add(req.RefID, pendingAuth{
		name:   req.Name,
		bank:   req.Bank,
		bankID: req.BankID,
		authID: link.ID,
		expiry: model.TruncateDay(s.now()).AddDate(0, 0, link.AccessValidForDays),
	})
	return link, nil
}

// SaveBankAuth stores the requisition authorized for a submitted bank, makes
// sure the ledger bank exists and queues the sync of its accounts.
func (s *Service) SaveBankAuth(ctx context.Context, name, bank, bankID, authID string, authExpiry time.Time) error {
	if name == "" || bank == "" || bankID == "" || authID == "" || authExpiry.IsZero() {
		return ErrInvalidArgs
	}
	if err := s.checkEnabled(ctx); err != nil {
		return err
	}
	b, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	switch b.DocStatus {
	case model.DocDraft:
		return fmt.Errorf("%w: %q", ErrNotSubmitted, name)
	case model.DocCancelled:
		return fmt.Errorf("%w: %q can't be authorized", ErrCancelled, name)
	}
	if b.BankName != bank || b.BankID != bankID {
		return fmt.Errorf("%w: %q", ErrAuthMismatch, name)
	}

	b.AuthID = authID
	b.AuthExpiry = model.TruncateDay(authExpiry)
	b.AuthStatus = model.AuthLinked
	if b.BankRef == "" {
		ref, err := s.AddBank(ctx, b.BankName)
		if err != nil {
			return fmt.Errorf("unable to add %q to the ledger: %w", b.BankName, err)
		}
		b.BankRef = ref
	}
	if err := s.save(ctx, b); err != nil {
		return err
	}
	s.activity.Info(component, "authorize", name, fmt.Sprintf("linked requisition %s until %s", authID, b.AuthExpiry.Format(time.DateOnly)))
	s.EnqueueSyncBank(name)
	return nil
}

// CompleteAuth finishes the authorization a redirect with reference ref
// returns from. name must match the bank the reference was issued for.
func (s *Service) CompleteAuth(ctx context.Context, name, ref string) error {
	p, ok := s.pending.Get(ref)
	if !ok || p.name != name {
		return fmt.Errorf("%w: %q", ErrUnknownReference, ref)
	}
	if err := s.SaveBankAuth(ctx, p.name, p.bank, p.bankID, p.authID, p.expiry); err != nil {
		return err
	}
	s.pending.Remove(ref)
	return nil
}

// AddBank makes sure the ledger bank bank exists and returns its name.
func (s *Service) AddBank(ctx context.Context, bank string) (string, error) {
	_, err := s.store.LedgerBank(ctx, bank)
	if err == nil {
		return bank, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if err := s.store.SaveLedgerBank(ctx, model.LedgerBank{Name: bank, FromGocardless: true}); err != nil {
		s.activity.Error(component, "add_bank", bank, err)
		return "", err
	}
	return bank, nil
}

// EnqueueSyncBank queues SyncBank for name unless it is already queued.
func (s *Service) EnqueueSyncBank(name string) bool {
	return s.runner.Enqueue(id.SyncBankJobID(name), func(ctx context.Context) error {
		return s.SyncBank(ctx, name)
	})
}

// CancelBank cancels a submitted bank: its queued jobs are dropped and the
// requisition is deleted.
func (s *Service) CancelBank(ctx context.Context, name string) error {
	b, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if b.DocStatus == model.DocCancelled {
		return nil
	}

	s.runner.Dequeue(id.SyncBankJobID(name))
	for _, a := range b.Accounts {
		s.runner.Dequeue(id.TransactionsSyncJobID(a.Account))
	}

	if b.AuthID != "" {
		client, err := s.access.Client(ctx, b.Company)
		if err == nil {
			err = client.DeleteRequisition(ctx, b.AuthID)
		}
		if err != nil {
			s.activity.Error(component, "remove_auth", name, err)
		}
	}

	b.DocStatus = model.DocCancelled
	b.AuthStatus = model.AuthUnlinked
	return s.save(ctx, b)
}

// DeleteBank removes a draft or cancelled bank and queues the cleanup of the
// ledger records synced for it.
func (s *Service) DeleteBank(ctx context.Context, name string) error {
	if err := s.checkEnabled(ctx); err != nil {
		return err
	}
	b, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if b.DocStatus == model.DocSubmitted {
		return fmt.Errorf("%w: %q", ErrSubmitted, name)
	}
	if err := s.store.DeleteBank(ctx, name); err != nil {
		return fmt.Errorf("deleting bank %s: %w", name, err)
	}
	s.activity.Info(component, "delete", name, "bank removed")

	if b.BankRef == "" || s.cleaner == nil {
		return nil
	}
	var refs []string
	for _, a := range b.Accounts {
		if a.BankAccountRef != "" {
			refs = append(refs, a.BankAccountRef)
		}
	}
	s.runner.Enqueue(id.CleanTrashJobID(name), func(ctx context.Context) error {
		return s.cleaner.CleanTrash(ctx, name, b.BankRef, b.Company, refs)
	})
	return nil
}

func (s *Service) checkEnabled(ctx context.Context) error {
	enabled, err := s.access.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return access.ErrDisabled
	}
	return nil
}

func (s *Service) load(ctx context.Context, name string) (model.Bank, error) {
	if name == "" {
		return model.Bank{}, ErrInvalidArgs
	}
	b, err := s.store.Bank(ctx, name)
	if err != nil {
		return b, fmt.Errorf("gocardless bank %q: %w", name, err)
	}
	return b, nil
}

// save writes the bank-level fields of b. Its accounts are left as stored.
func (s *Service) save(ctx context.Context, b model.Bank) error {
	err := s.store.UpdateBank(ctx, b.Name, func(cur *model.Bank) error {
		accounts := cur.Accounts
		*cur = b
		cur.Accounts = accounts
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving bank %s: %w", b.Name, err)
	}
	return nil
}
