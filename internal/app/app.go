// Package app wires the store, API client and services of a gcsync process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/bank"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/banktx"
	"github.com/cleared-dev/gcsync/internal/clean"
	"github.com/cleared-dev/gcsync/internal/config"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/httpapi"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/schedule"
	"github.com/cleared-dev/gcsync/internal/store"
	"github.com/cleared-dev/gcsync/internal/store/memory"
	"github.com/cleared-dev/gcsync/internal/store/postgres"
)

// App holds the services of one process.
type App struct {
	Config   *config.Config
	Store    store.Store
	Runner   *jobs.Runner
	Activity *activitylog.Recorder
	Notifier events.Notifier
	Logger   *slog.Logger

	Access     *access.Service
	Currencies *currency.Service
	Accounts   *bankaccount.Service
	Banks      *bank.Service
	Sync       *banktx.Service
	Cleaner    *clean.Service
	Hooks      *schedule.Hooks

	db *postgres.Store
}

// Open connects the store named by cfg, creates missing tables, seeds it
// from cfg and builds the services. Extra client options are applied after the configured ones.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...gocardless.Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if cfg.Database.URL == "" {
		logger.Debug("using in-memory store")
		a.Store = memory.New()
	} else {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Store = db
		if err := db.Migrate(ctx); err != nil {
			a.closeStore()
			return nil, err
		}
	}
	if err := cfg.Seed(ctx, a.Store); err != nil {
		a.closeStore()
		return nil, fmt.Errorf("seeding store: %w", err)
	}

	a.Activity = activitylog.NewRecorder(cfg.Log.ActivityDir, logger)
	a.Notifier = events.NewLogNotifier(logger)
	a.Runner = jobs.New(cfg.Jobs.Workers, logger)
	a.Runner.OnError(func(id string, err error) {
		a.Activity.Error("jobs", "run", id, err)
	})

	clientOpts := []gocardless.Option{gocardless.WithLogger(logger)}
	if cfg.GoCardless.BaseURL != "" {
		clientOpts = append(clientOpts, gocardless.WithBaseURL(cfg.GoCardless.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	a.Access = access.NewService(a.Store, logger, clientOpts...)
	a.Currencies = currency.NewService(a.Store, a.Runner, a.Activity)
	a.Accounts = bankaccount.NewService(a.Store, a.Currencies, a.Notifier, a.Activity)
	a.Cleaner = clean.NewService(a.Store, a.Currencies, a.Activity, logger)
	a.Banks = bank.NewService(a.Store, a.Access, a.Runner, a.Cleaner, a.Notifier, a.Activity, logger, bank.Options{
		RedirectURL:  cfg.GoCardless.RedirectURL,
		UserLanguage: cfg.GoCardless.UserLanguage,
	})
	a.Sync = banktx.NewService(a.Store, a.Access, a.Accounts, a.Currencies, a.Runner, nil, a.Notifier, a.Activity, logger)
	a.Hooks = schedule.NewHooks(a.Store, a.Access, a.Sync, a.Notifier, a.Activity, logger)
	return a, nil
}

// Persistent reports whether the store outlives the process.
func (a *App) Persistent() bool {
	return a.db != nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return httpapi.New(a.Banks, a.Accounts, a.Sync, a.Logger)
}

// Scheduler returns a scheduler running the hooks on the configured specs.
func (a *App) Scheduler() (*schedule.Scheduler, error) {
	return schedule.NewScheduler(a.Hooks, a.Config.Schedule, a.Logger)
}

// Close stops the jobs, waiting for running ones until ctx is done, and
// closes the store.
func (a *App) Close(ctx context.Context) error {
	err := a.Runner.Shutdown(ctx)
	return errors.Join(err, a.closeStore())
}

func (a *App) closeStore() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
