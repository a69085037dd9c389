// Package schedule runs the periodic bank hooks: automatic transaction
// syncs and bank status updates.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/banktx"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

const component = "schedule"

// Hooks are the scheduled bank jobs.
type Hooks struct {
	store    store.Store
	access   *access.Service
	syncer   *banktx.Service
	notifier events.Notifier
	activity *activitylog.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewHooks creates Hooks.
func NewHooks(st store.Store, acc *access.Service, syncer *banktx.Service, notifier events.Notifier, activity *activitylog.Recorder, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		store:    st,
		access:   acc,
		syncer:   syncer,
		notifier: notifier,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// AutoSync queues a transaction sync of every ready account of the enabled,
// auto synced and authorized banks. It does nothing when the sync is
// disabled.
func (h *Hooks) AutoSync(ctx context.Context) error {
	enabled, err := h.access.Enabled(ctx)
	if err != nil || !enabled {
		return err
	}
	banks, err := h.store.Banks(ctx, store.BankFilter{Enabled: true, AutoSync: true, AuthStatus: model.AuthLinked})
	if err != nil {
		return fmt.Errorf("listing banks: %w", err)
	}

	now := h.now()
	var errs []error
	for _, b := range banks {
		if !b.Authorized(now) {
			continue
		}
		if err := h.SyncBank(ctx, b, model.TriggerAuto); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncBank queues the window after the last sync of every ready, linked
// account of b that is not already syncing. Accounts past today's sync
// limit are skipped.
func (h *Hooks) SyncBank(ctx context.Context, b model.Bank, trigger model.SyncTrigger) error {
	now := h.now()
	var errs []error
	for _, row := range b.Accounts {
		if row.Status != model.AccountReady || row.BankAccountRef == "" || h.syncer.IsSyncing(row.Account) {
			continue
		}
		win := banktx.AutoWindow(row.LastSync, now)
		_, err := h.syncer.Queue(ctx, b, row, trigger, []banktx.Window{win})
		switch {
		case err == nil:
			h.logger.Info("auto sync queued", "bank", b.Name, "account", row.Account, "window", win.String())
		case errors.Is(err, banktx.ErrSyncLimit), errors.Is(err, banktx.ErrInProgress):
			h.logger.Debug("auto sync skipped", "bank", b.Name, "account", row.Account, "err", err)
		default:
			errs = append(errs, fmt.Errorf("queueing sync of %s: %w", row.Account, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateBanksStatus unlinks banks whose authorization expired, marking
// their accounts Expired, and refreshes the status of the accounts of the
// remaining linked banks that are not Ready. Accounts that became Ready
// get their balances fetched.
func (h *Hooks) UpdateBanksStatus(ctx context.Context) error {
	enabled, err := h.access.Enabled(ctx)
	if err != nil || !enabled {
		return err
	}
	banks, err := h.store.Banks(ctx, store.BankFilter{AuthStatus: model.AuthLinked})
	if err != nil {
		return fmt.Errorf("listing banks: %w", err)
	}

	today := model.TruncateDay(h.now())
	var errs []error
	for _, b := range banks {
		if b.AuthID == "" {
			continue
		}
		if b.AuthExpiry.Before(today) {
			if err := h.expire(ctx, b); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := h.refreshAccounts(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hooks) expire(ctx context.Context, b model.Bank) error {
	err := h.store.UpdateBank(ctx, b.Name, func(cur *model.Bank) error {
		cur.AuthID = ""
		cur.AuthExpiry = time.Time{}
		cur.AuthStatus = model.AuthUnlinked
		for i := range cur.Accounts {
			cur.Accounts[i].Status = model.AccountExpired
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("unable to update bank auth status of %s: %w", b.Name, err)
		h.activity.Error(component, "expire", b.Name, err)
		return err
	}
	h.activity.Info(component, "expire", b.Name, "bank authorization expired")
	h.notifier.Notify(ctx, events.Event{Kind: events.StatusChanged, Bank: b.Name, Message: "bank authorization expired"})
	return nil
}

func (h *Hooks) refreshAccounts(ctx context.Context, b model.Bank) error {
	var stale []int
	for i, row := range b.Accounts {
		if row.Status != model.AccountReady && row.AccountID != "" {
			stale = append(stale, i)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	client, err := h.access.Client(ctx, b.Company)
	if err != nil {
		h.activity.Error(component, "status", b.Name, err)
		return err
	}

	changed := false
	var errs []error
	for _, i := range stale {
		row := b.Accounts[i]
		acc, err := client.GetAccount(ctx, row.AccountID)
		if err != nil {
			h.logger.Warn("account status not refreshed", "bank", b.Name, "account", row.Account, "err", err)
			continue
		}
		if acc.Status == "" || acc.Status == row.Status {
			continue
		}
		h.logger.Info("account status changed", "bank", b.Name, "account", row.Account, "from", row.Status, "to", acc.Status)

		var balances string
		if acc.Status == model.AccountReady {
			if list, err := client.GetBalances(ctx, row.AccountID); err != nil {
				h.activity.Error(component, "balances", row.Account, err)
			} else if balances, err = bankaccount.EncodeBalances(list); err != nil {
				h.activity.Error(component, "balances", row.Account, err)
			}
		}

		err = h.store.UpdateBankAccount(ctx, b.Name, row.Account, func(cur *model.BankAccount) error {
			cur.Status = acc.Status
			if balances != "" {
				cur.Balances = balances
			}
			return nil
		})
		if err != nil {
			err = fmt.Errorf("unable to update account status of %s: %w", row.Account, err)
			h.activity.Error(component, "status", b.Name, err)
			errs = append(errs, err)
			continue
		}
		changed = true
	}
	if changed {
		h.notifier.Notify(ctx, events.Event{Kind: events.StatusChanged, Bank: b.Name, Message: "bank account status changed"})
	}
	return errors.Join(errs...)
}
