package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/banktx"
	"github.com/cleared-dev/gcsync/internal/config"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless/gocardlesstest"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/logging"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store/memory"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	hooks  *Hooks
	store  *memory.Store
	api    *gocardlesstest.Server
	runner *jobs.Runner
	events *events.Collector
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()

	api := gocardlesstest.New(t)
	api.SetAccount("acc-1", &gocardlesstest.Account{
		Status:   "READY",
		Currency: "EUR",
		Booked: []map[string]any{{
			"transactionId":     "T1",
			"bookingDate":       "2025-03-05",
			"transactionAmount": map[string]any{"amount": "-3.20", "currency": "EUR"},
		}},
	})
	api.SetAccount("acc-2", &gocardlesstest.Account{Status: "READY", Currency: "EUR"})
	api.SetAccount("acc-3", &gocardlesstest.Account{Status: "PROCESSING", Currency: "EUR"})

	st := memory.New()
	require.NoError(t, st.SaveSettings(ctx, model.Settings{Enabled: true}))
	require.NoError(t, st.SaveAccess(ctx, model.Access{Company: "Acme", SecretID: "id", SecretKey: "key"}))
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "EUR", Enabled: true}))

	linked := func(name string, expiry time.Time, autoSync bool, accounts ...model.BankAccount) model.Bank {
		return model.Bank{
			Name:       name,
			Company:    "Acme",
			BankName:   "Nordea",
			BankID:     "NORDEA_NDEANOKK",
			BankRef:    "Nordea",
			AuthID:     "req-" + name,
			AuthExpiry: expiry,
			AuthStatus: model.AuthLinked,
			AutoSync:   autoSync,
			DocStatus:  model.DocSubmitted,
			Accounts:   accounts,
		}
	}
	for _, b := range []model.Bank{
		linked("Nordea - Acme", now.AddDate(0, 1, 0), true,
			model.BankAccount{Account: "Main", AccountID: "acc-1", Status: model.AccountReady, BankAccountRef: "Main - Nordea", LastSync: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)},
			model.BankAccount{Account: "Waiting", AccountID: "acc-2", Status: model.AccountProcessing, BankAccountRef: "Waiting - Nordea"},
			model.BankAccount{Account: "Slow", AccountID: "acc-3", Status: model.AccountProcessing, BankAccountRef: "Slow - Nordea"},
			model.BankAccount{Account: "Loose", AccountID: "acc-1", Status: model.AccountReady},
		),
		linked("Expired - Acme", now.AddDate(0, 0, -1), true,
			model.BankAccount{Account: "Old", AccountID: "acc-9", Status: model.AccountReady, BankAccountRef: "Old - Nordea"},
		),
		linked("Manual - Acme", now.AddDate(0, 1, 0), false,
			model.BankAccount{Account: "Other", AccountID: "acc-8", Status: model.AccountReady, BankAccountRef: "Other - Nordea"},
		),
	} {
		require.NoError(t, st.SaveBank(ctx, b))
	}

	runner := jobs.New(2, logger)
	t.Cleanup(runner.Wait)
	rec := activitylog.NewRecorder("", logger)
	col := &events.Collector{}
	acc := access.NewService(st, logger, api.Option())
	currencies := currency.NewService(st, runner, rec)
	syncer := banktx.NewService(st, acc, bankaccount.NewService(st, currencies, col, rec), currencies, runner, nil, col, rec, logger)

	h := NewHooks(st, acc, syncer, col, rec, logger)
	h.now = func() time.Time { return now }
	return fixture{hooks: h, store: st, api: api, runner: runner, events: col}
}

func TestAutoSync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.hooks.AutoSync(ctx))
	f.runner.Wait()

	assert.Equal(t, []string{"date_from=2025-03-05&date_to=2025-03-06"}, f.api.TransactionQueries())
	logs := f.store.SyncLogs("Nordea - Acme")
	require.Len(t, logs, 1)
	assert.Equal(t, model.TriggerAuto, logs[0].Trigger)
	assert.Equal(t, "Main", logs[0].Account)
	assert.Empty(t, f.store.SyncLogs("Expired - Acme"))
	assert.Empty(t, f.store.SyncLogs("Manual - Acme"))
}

func TestAutoSync_SkipsAccountsAtLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, logID := range []string{"a", "b", "c", "d"} {
		require.NoError(t, f.store.InsertSyncLog(ctx, model.SyncLog{ID: logID, Bank: "Nordea - Acme", Account: "Main", Created: now}))
	}

	require.NoError(t, f.hooks.AutoSync(ctx))
	f.runner.Wait()

	assert.Empty(t, f.api.TransactionQueries())
}

func TestAutoSync_Disabled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveSettings(ctx, model.Settings{}))

	require.NoError(t, f.hooks.AutoSync(ctx))
	require.NoError(t, f.hooks.UpdateBanksStatus(ctx))
	f.runner.Wait()

	assert.Zero(t, f.api.Count("/token/new/"))
	assert.Empty(t, f.events.Events())
}

func TestUpdateBanksStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.hooks.UpdateBanksStatus(ctx))

	expired, err := f.store.Bank(ctx, "Expired - Acme")
	require.NoError(t, err)
	assert.Equal(t, model.AuthUnlinked, expired.AuthStatus)
	assert.Empty(t, expired.AuthID)
	assert.True(t, expired.AuthExpiry.IsZero())
	assert.Equal(t, model.AccountExpired, expired.Account("Old").Status)

	b, err := f.store.Bank(ctx, "Nordea - Acme")
	require.NoError(t, err)
	waiting := b.Account("Waiting")
	assert.Equal(t, model.AccountReady, waiting.Status)
	assert.Contains(t, waiting.Balances, "closing")
	assert.Equal(t, model.AccountProcessing, b.Account("Slow").Status)
	assert.Equal(t, model.AuthLinked, b.AuthStatus)

	assert.Zero(t, f.api.Count("/accounts/acc-9/"), "expired banks are not refreshed")
	assert.Len(t, f.events.Of(events.StatusChanged), 2)
}

func TestNewScheduler(t *testing.T) {
	f := setup(t)

	s, err := NewScheduler(f.hooks, config.Default().Schedule, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s, err = NewScheduler(f.hooks, config.ScheduleConfig{AutoSync: "@every 6h"}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
	s.Start()
	require.NoError(t, s.Stop(context.Background()))

	_, err = NewScheduler(f.hooks, config.ScheduleConfig{AutoSync: "not a spec"}, logging.Discard())
	assert.Error(t, err)
}

func TestRunHook(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, RunHook(ctx, f.hooks, HookUpdateBanksStatus))
	b, err := f.store.Bank(ctx, "Expired - Acme")
	require.NoError(t, err)
	assert.Equal(t, model.AuthUnlinked, b.AuthStatus)

	assert.Error(t, RunHook(ctx, f.hooks, "nightly"))
}
