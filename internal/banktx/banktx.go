// Package banktx syncs the transactions of linked bank accounts into the
// ledger.
package banktx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/importer"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

var (
	// ErrInvalidArgs is returned when a required argument is empty.
	ErrInvalidArgs = errors.New("arguments passed are invalid")
	// ErrInProgress is returned when the account is already being synced.
	ErrInProgress = errors.New("bank account sync is in progress")
	// ErrSyncLimit is returned when the account used up today's syncs.
	ErrSyncLimit = errors.New("bank account sync limit reached for today")
	// ErrUnknownAccount is returned when the account is not part of the bank.
	ErrUnknownAccount = errors.New("bank account is not part of the bank")
	// ErrNotLinked is returned when the account has no ledger bank account.
	ErrNotLinked = errors.New("bank account is not linked to a ledger bank account")
	// ErrNotAuthorized is returned when the bank requisition is missing or expired.
	ErrNotAuthorized = errors.New("bank is not authorized")
)

const (
	component = "banktx"

	syncMarkerTTL = 1500 * time.Second
)

// Service queues and runs transaction syncs.
type Service struct {
	store      store.Store
	access     *access.Service
	accounts   *bankaccount.Service
	currencies *currency.Service
	runner     *jobs.Runner
	mappers    *importer.Registry
	notifier   events.Notifier
	activity   *activitylog.Recorder
	logger     *slog.Logger

	syncing *expirable.LRU[string, time.Time]
	now     func() time.Time
}

// NewService creates a Service. A nil mappers uses importer.DefaultRegistry.
func NewService(
	st store.Store,
	acc *access.Service,
	accounts *bankaccount.Service,
	currencies *currency.Service,
	runner *jobs.Runner,
	mappers *importer.Registry,
	notifier events.Notifier,
	activity *activitylog.Recorder,
	logger *slog.Logger,
) *Service {
	if mappers == nil {
		mappers = importer.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		access:     acc,
		accounts:   accounts,
		currencies: currencies,
		runner:     runner,
		mappers:    mappers,
		notifier:   notifier,
		activity:   activity,
		logger:     logger,
		syncing:    expirable.NewLRU[string, time.Time](0, nil, syncMarkerTTL),
		now:        time.Now,
	}
}

// IsSyncing reports whether a sync of account is running or queued.
func (s *Service) IsSyncing(account string) bool {
	if _, ok := s.syncing.Get(account); ok {
		return true
	}
	return s.runner.IsQueued(id.TransactionsSyncJobID(account))
}

// EnqueueResult describes a queued manual sync.
type EnqueueResult struct {
	Windows []Window `json:"windows"`
	// Dropped counts the windows left out because of the daily sync limit.
	Dropped int `json:"dropped,omitempty"`
}

// EnqueueSync queues a manual sync of account of bank over [from, to].
// Zero dates are resolved by ManualWindows.
func (s *Service) EnqueueSync(ctx context.Context, bank, account string, from, to time.Time) (EnqueueResult, error) {
	if bank == "" || account == "" {
		return EnqueueResult{}, ErrInvalidArgs
	}
	enabled, err := s.access.Enabled(ctx)
	if err != nil {
		return EnqueueResult{}, err
	}
	if !enabled {
		return EnqueueResult{}, access.ErrDisabled
	}
	if s.IsSyncing(account) {
		return EnqueueResult{}, fmt.Errorf("%w: %q", ErrInProgress, account)
	}

	b, err := s.store.Bank(ctx, bank)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("gocardless bank %q: %w", bank, err)
	}
	now := s.now()
	if !b.Authorized(now) {
		return EnqueueResult{}, fmt.Errorf("%w: %q", ErrNotAuthorized, bank)
	}
	row := b.Account(account)
	if row == nil {
		return EnqueueResult{}, fmt.Errorf("%w: %q of %q", ErrUnknownAccount, account, bank)
	}
	if row.BankAccountRef == "" {
		return EnqueueResult{}, fmt.Errorf("%w: %q", ErrNotLinked, account)
	}
	if _, err := s.access.Client(ctx, b.Company); err != nil {
		return EnqueueResult{}, err
	}

	list := ManualWindows(from, to, now, b.Days())
	if len(list) == 0 {
		return EnqueueResult{}, fmt.Errorf("%w: no days between %s and %s", ErrInvalidArgs, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	queued, err := s.Queue(ctx, b, *row, model.TriggerManual, list)
	if err != nil {
		return EnqueueResult{}, err
	}
	return EnqueueResult{Windows: queued, Dropped: len(list) - len(queued)}, nil
}

// Queue starts one job syncing windows of account row of bank b, unless a
// job for the account is already queued. Windows beyond what the daily sync
// limit allows are left out. It returns the windows queued.
func (s *Service) Queue(ctx context.Context, b model.Bank, row model.BankAccount, trigger model.SyncTrigger, windows []Window) ([]Window, error) {
	cfg, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	today := model.TruncateDay(s.now())
	count, err := s.store.CountSyncLogs(ctx, b.Name, row.Account, today)
	if err != nil {
		return nil, fmt.Errorf("counting sync logs of %s: %w", row.Account, err)
	}
	remaining := cfg.Limit() - count
	if remaining <= 0 {
		s.activity.Info(component, "queue", row.Account, fmt.Sprintf("sync of %s has exceeded the allowed limit %d", b.BankName, cfg.Limit()))
		return nil, fmt.Errorf("%w: %q", ErrSyncLimit, row.Account)
	}
	if len(windows) > remaining {
		windows = windows[:remaining]
	}

	job := Job{Bank: b.Name, Account: row.Account, Trigger: trigger, Windows: windows}
	if !s.runner.Enqueue(id.TransactionsSyncJobID(row.Account), func(ctx context.Context) error {
		return s.SyncTransactions(ctx, job)
	}) {
		return nil, fmt.Errorf("%w: %q", ErrInProgress, row.Account)
	}
	s.logger.Info("transactions sync queued", "bank", b.Name, "account", row.Account, "windows", len(windows), "trigger", trigger)
	return windows, nil
}
