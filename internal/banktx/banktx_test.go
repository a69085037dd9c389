package banktx

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless/gocardlesstest"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/logging"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
	"github.com/cleared-dev/gcsync/internal/store/memory"
)

var now = time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)

const bankName = "Nordea - Acme"

type fixture struct {
	svc    *Service
	store  *memory.Store
	api    *gocardlesstest.Server
	runner *jobs.Runner
	events *events.Collector
}

func txn(id, date, amount, cur string, extra map[string]any) map[string]any {
	t := map[string]any{"transactionAmount": map[string]any{"amount": amount, "currency": cur}}
	if id != "" {
		t["transactionId"] = id
	}
	if date != "" {
		t["bookingDate"] = date
	}
	for k, v := range extra {
		t[k] = v
	}
	return t
}

func defaultSettings() model.Settings {
	return model.Settings{
		Enabled:                                 true,
		AddSupplierInfoIfAvailable:              true,
		CreateSupplierIfDoesNotExist:            true,
		CreateSupplierBankAccountIfDoesNotExist: true,
		SupplierDefaultGroup:                    "All Supplier Groups",
		AddCustomerInfoIfAvailable:              true,
		CreateCustomerIfDoesNotExist:            true,
		CustomerDefaultGroup:                    "All Customer Groups",
	}
}

func setup(t *testing.T, cfg model.Settings) fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()

	api := gocardlesstest.New(t)
	api.SetAccount("acc-1", &gocardlesstest.Account{
		Status:   "READY",
		Currency: "EUR",
		Booked: []map[string]any{
			txn("T1", "2025-03-05", "-12.50", "EUR", map[string]any{
				"remittanceInformationUnstructured": "Coffee",
				"creditorName":                      "Cafe AS",
				"creditorAccount":                   map[string]any{"iban": "GB82WEST12345698765432"},
			}),
			txn("T2", "2025-03-06", "100", "EUR", map[string]any{"debtorName": "Client Ltd"}),
		},
		Pending: []map[string]any{
			txn("", "2025-03-06", "5", "EUR", nil),
		},
	})

	st := memory.New()
	require.NoError(t, st.SaveSettings(ctx, cfg))
	require.NoError(t, st.SaveAccess(ctx, model.Access{Company: "Acme", SecretID: "id", SecretKey: "key"}))
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "EUR", Enabled: true}))
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "SEK"}))
	require.NoError(t, st.SaveBank(ctx, model.Bank{
		Name:            bankName,
		Company:         "Acme",
		BankName:        "Nordea",
		BankID:          "NORDEA_NDEANOKK",
		BankRef:         "Nordea",
		TransactionDays: 30,
		AuthID:          "req-1",
		AuthExpiry:      now.AddDate(0, 3, 0),
		AuthStatus:      model.AuthLinked,
		DocStatus:       model.DocSubmitted,
		Accounts: []model.BankAccount{
			{Account: "Main", AccountID: "acc-1", Currency: "EUR", Status: model.AccountReady, BankAccountRef: "Main - Nordea"},
			{Account: "Unlinked", AccountID: "acc-2", Currency: "EUR", Status: model.AccountReady},
		},
	}))

	runner := jobs.New(2, logger)
	t.Cleanup(runner.Wait)
	rec := activitylog.NewRecorder("", logger)
	col := &events.Collector{}
	currencies := currency.NewService(st, runner, rec)
	svc := NewService(
		st,
		access.NewService(st, logger, api.Option()),
		bankaccount.NewService(st, currencies, col, rec),
		currencies,
		runner,
		nil,
		col,
		rec,
		logger,
	)
	svc.now = func() time.Time { return now }
	return fixture{svc: svc, store: st, api: api, runner: runner, events: col}
}

func job(from, to string) Job {
	return Job{Bank: bankName, Account: "Main", Trigger: model.TriggerManual, Windows: windows(from, to)}
}

func byID(t *testing.T, st *memory.Store) map[string]model.BankTransaction {
	t.Helper()
	list, err := st.Transactions(context.Background(), store.TransactionFilter{})
	require.NoError(t, err)
	out := make(map[string]model.BankTransaction, len(list))
	for _, bt := range list {
		out[bt.TransactionID] = bt
	}
	return out
}

func TestSyncTransactions(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()

	require.NoError(t, f.svc.SyncTransactions(ctx, job("2025-03-05", "2025-03-06")))
	assert.Equal(t, []string{"date_from=2025-03-05&date_to=2025-03-06"}, f.api.TransactionQueries())

	txns := byID(t, f.store)
	require.Len(t, txns, 3)

	coffee := txns["T1"]
	assert.Equal(t, "12.5", coffee.Withdrawal.String())
	assert.True(t, coffee.Deposit.IsZero())
	assert.Equal(t, "Coffee", coffee.Description)
	assert.Equal(t, model.TransactionSettled, coffee.Status)
	assert.Equal(t, "Main - Nordea", coffee.BankAccount)
	assert.Equal(t, day("2025-03-05"), coffee.Date)
	assert.Equal(t, model.PartySupplier, coffee.PartyType)
	assert.Equal(t, "Cafe AS", coffee.Party)
	assert.True(t, coffee.FromGocardless)

	supplier, err := f.store.Party(ctx, model.PartySupplier, "Cafe AS")
	require.NoError(t, err)
	assert.Equal(t, "All Supplier Groups", supplier.Group)
	assert.Equal(t, model.IndividualParty, supplier.Kind)
	assert.Equal(t, "Cafe AS - Nordea", supplier.DefaultBankAccount)
	acc, err := f.store.LedgerBankAccount(ctx, "Cafe AS - Nordea")
	require.NoError(t, err)
	assert.Equal(t, "GB82WEST12345698765432", acc.IBAN)

	income := txns["T2"]
	assert.Equal(t, "100", income.Deposit.String())
	assert.Empty(t, income.Party, "customer needs a default territory to be created")
	_, err = f.store.Party(ctx, model.PartyCustomer, "Client Ltd")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var pending model.BankTransaction
	for txID, bt := range txns {
		if txID != "T1" && txID != "T2" {
			pending = bt
		}
	}
	assert.Equal(t, model.TransactionPending, pending.Status)
	assert.Len(t, pending.TransactionID, 36, "derived id is a UUID")

	logs := f.store.SyncLogs(bankName)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncFinished, logs[0].Status)
	assert.Equal(t, 3, logs[0].Transactions)
	assert.Equal(t, model.TriggerManual, logs[0].Trigger)

	b, err := f.store.Bank(ctx, bankName)
	require.NoError(t, err)
	main := b.Account("Main")
	assert.Equal(t, time.Date(2025, 3, 6, 12, 30, 0, 0, time.UTC), main.LastSync)
	assert.Contains(t, main.Balances, "closing")
}

func TestSyncTransactions_Idempotent(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()

	require.NoError(t, f.svc.SyncTransactions(ctx, job("2025-03-05", "2025-03-06")))
	require.NoError(t, f.svc.SyncTransactions(ctx, job("2025-03-05", "2025-03-06")))

	assert.Len(t, byID(t, f.store), 3)
	logs := f.store.SyncLogs(bankName)
	require.Len(t, logs, 2)
	total := logs[0].Transactions + logs[1].Transactions
	assert.Equal(t, 3, total)
}

func TestSyncTransactions_CustomerCreated(t *testing.T) {
	cfg := defaultSettings()
	cfg.CustomerDefaultTerritory = "Norway"
	f := setup(t, cfg)
	ctx := context.Background()

	require.NoError(t, f.svc.SyncTransactions(ctx, job("2025-03-05", "2025-03-06")))

	income := byID(t, f.store)["T2"]
	assert.Equal(t, model.PartyCustomer, income.PartyType)
	assert.Equal(t, "Client Ltd", income.Party)
	customer, err := f.store.Party(ctx, model.PartyCustomer, "Client Ltd")
	require.NoError(t, err)
	assert.Equal(t, "Norway", customer.Territory)
	assert.True(t, customer.FromGocardless)
}

func TestSyncTransactions_SettingsFlags(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*model.Settings)
		booked    []map[string]any
		wantCount int
		wantErr   bool
	}{
		{
			name:      "missing id derived",
			booked:    []map[string]any{txn("", "2025-03-05", "1", "EUR", nil)},
			wantCount: 1,
		},
		{
			name:      "missing id ignored",
			configure: func(s *model.Settings) { s.OnlySyncTransactionsWithID = true },
			booked:    []map[string]any{txn("", "2025-03-05", "1", "EUR", nil)},
		},
		{
			name:    "missing date reported",
			booked:  []map[string]any{txn("X", "", "1", "EUR", nil)},
			wantErr: true,
		},
		{
			name:      "missing date ignored",
			configure: func(s *model.Settings) { s.IgnoreTransactionsWithoutDate = true },
			booked:    []map[string]any{txn("X", "", "1", "EUR", nil)},
		},
		{
			name:    "missing amount reported",
			booked:  []map[string]any{txn("X", "2025-03-05", "", "EUR", nil)},
			wantErr: true,
		},
		{
			name:      "missing currency ignored",
			configure: func(s *model.Settings) { s.IgnoreTransactionsWithoutCurrency = true },
			booked:    []map[string]any{txn("X", "2025-03-05", "1", "", nil)},
		},
		{
			name:    "unknown currency reported",
			booked:  []map[string]any{txn("X", "2025-03-05", "1", "USD", nil)},
			wantErr: true,
		},
		{
			name:      "unknown currency ignored",
			configure: func(s *model.Settings) { s.IgnoreTransactionsWithoutExistingCurrency = true },
			booked:    []map[string]any{txn("X", "2025-03-05", "1", "USD", nil)},
		},
		{
			name:      "disabled currency imported",
			booked:    []map[string]any{txn("X", "2025-03-05", "1", "SEK", nil)},
			wantCount: 1,
		},
		{
			name:      "disabled currency ignored",
			configure: func(s *model.Settings) { s.IgnoreTransactionsWithoutEnabledCurrency = true },
			booked:    []map[string]any{txn("X", "2025-03-05", "1", "SEK", nil)},
		},
		{
			name:      "nordea P duplicates dropped",
			booked:    []map[string]any{txn("H1", "2025-03-05", "1", "EUR", nil), txn("P1", "2025-03-05", "1", "EUR", nil)},
			wantCount: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.Settings{Enabled: true}
			if tt.configure != nil {
				tt.configure(&cfg)
			}
			f := setup(t, cfg)
			f.api.SetAccount("acc-1", &gocardlesstest.Account{Status: "READY", Currency: "EUR", Booked: tt.booked})

			err := f.svc.SyncTransactions(context.Background(), job("2025-03-05", "2025-03-06"))
			if tt.wantErr {
				assert.Error(t, err)
				assert.NotEmpty(t, f.events.Of(events.BankError))
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, byID(t, f.store), tt.wantCount)
		})
	}
}

func TestSyncTransactions_NoDataKeepsLastSync(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()
	f.api.SetAccount("acc-1", &gocardlesstest.Account{Status: "READY", Currency: "EUR"})

	require.NoError(t, f.svc.SyncTransactions(ctx, job("2025-03-05", "2025-03-06")))

	b, err := f.store.Bank(ctx, bankName)
	require.NoError(t, err)
	assert.True(t, b.Account("Main").LastSync.IsZero())
	logs := f.store.SyncLogs(bankName)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncFinished, logs[0].Status)
}

func TestEnqueueSync(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()

	res, err := f.svc.EnqueueSync(ctx, bankName, "Main", day("2025-03-05"), day("2025-03-08"))
	require.NoError(t, err)
	assert.Equal(t, windows("2025-03-05", "2025-03-06", "2025-03-07", "2025-03-08"), res.Windows)
	assert.Zero(t, res.Dropped)
	f.runner.Wait()

	assert.Equal(t, []string{
		"date_from=2025-03-05&date_to=2025-03-06",
		"date_from=2025-03-07&date_to=2025-03-08",
	}, f.api.TransactionQueries())
	assert.Len(t, f.store.SyncLogs(bankName), 2)
	assert.Len(t, byID(t, f.store), 3)
	assert.False(t, f.svc.IsSyncing("Main"))
}

// overlapStore holds back account updates until two are in flight, so the
// last sync of two accounts is written at the same time.
type overlapStore struct {
	store.Store
	entered atomic.Int32
	both    chan struct{}
}

func (o *overlapStore) UpdateBankAccount(ctx context.Context, bank, account string, fn func(*model.BankAccount) error) error {
	if o.entered.Add(1) == 2 {
		close(o.both)
	}
	select {
	case <-o.both:
	case <-time.After(2 * time.Second):
	}
	return o.Store.UpdateBankAccount(ctx, bank, account, fn)
}

func TestEnqueueSync_AccountsOfOneBank(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()

	f.api.SetAccount("acc-2", &gocardlesstest.Account{
		Status:   "READY",
		Currency: "EUR",
		Booked:   []map[string]any{txn("U1", "2025-03-08", "40", "EUR", nil)},
	})
	require.NoError(t, f.store.UpdateBankAccount(ctx, bankName, "Unlinked", func(row *model.BankAccount) error {
		row.BankAccountRef = "Unlinked - Nordea"
		return nil
	}))
	overlap := &overlapStore{Store: f.store, both: make(chan struct{})}
	f.svc.store = overlap

	_, err := f.svc.EnqueueSync(ctx, bankName, "Main", day("2025-03-05"), day("2025-03-06"))
	require.NoError(t, err)
	_, err = f.svc.EnqueueSync(ctx, bankName, "Unlinked", day("2025-03-07"), day("2025-03-08"))
	require.NoError(t, err)
	f.runner.Wait()
	assert.EqualValues(t, 2, overlap.entered.Load())

	b, err := f.store.Bank(ctx, bankName)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 6, 12, 30, 0, 0, time.UTC), b.Account("Main").LastSync)
	assert.Equal(t, time.Date(2025, 3, 8, 12, 30, 0, 0, time.UTC), b.Account("Unlinked").LastSync)
	assert.NotEmpty(t, b.Account("Main").Balances)
	assert.NotEmpty(t, b.Account("Unlinked").Balances)
	assert.Equal(t, "Unlinked - Nordea", b.Account("Unlinked").BankAccountRef)
}

func TestEnqueueSync_Today(t *testing.T) {
	f := setup(t, defaultSettings())

	res, err := f.svc.EnqueueSync(context.Background(), bankName, "Main", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, windows("2025-03-10", "2025-03-11"), res.Windows)
}

func TestEnqueueSync_SyncLimit(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.InsertSyncLog(ctx, model.SyncLog{ID: fmt.Sprintf("log-%d", i), Bank: bankName, Account: "Main", Created: now.Add(-time.Hour)}))
	}
	require.NoError(t, f.store.InsertSyncLog(ctx, model.SyncLog{ID: "old", Bank: bankName, Account: "Main", Created: now.AddDate(0, 0, -1)}))

	res, err := f.svc.EnqueueSync(ctx, bankName, "Main", day("2025-03-01"), day("2025-03-08"))
	require.NoError(t, err)
	assert.Equal(t, windows("2025-03-01", "2025-03-02"), res.Windows)
	assert.Equal(t, 3, res.Dropped)
	f.runner.Wait()

	_, err = f.svc.EnqueueSync(ctx, bankName, "Main", day("2025-03-01"), day("2025-03-08"))
	assert.ErrorIs(t, err, ErrSyncLimit)
}

func TestEnqueueSync_Errors(t *testing.T) {
	f := setup(t, defaultSettings())
	ctx := context.Background()
	from, to := day("2025-03-05"), day("2025-03-06")

	_, err := f.svc.EnqueueSync(ctx, "", "Main", from, to)
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = f.svc.EnqueueSync(ctx, "Missing", "Main", from, to)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.EnqueueSync(ctx, bankName, "Nope", from, to)
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = f.svc.EnqueueSync(ctx, bankName, "Unlinked", from, to)
	assert.ErrorIs(t, err, ErrNotLinked)

	f.svc.syncing.Add("Main", now)
	_, err = f.svc.EnqueueSync(ctx, bankName, "Main", from, to)
	assert.ErrorIs(t, err, ErrInProgress)
	f.svc.syncing.Remove("Main")

	b, err := f.store.Bank(ctx, bankName)
	require.NoError(t, err)
	b.AuthExpiry = now.AddDate(0, 0, -1)
	require.NoError(t, f.store.SaveBank(ctx, b))
	_, err = f.svc.EnqueueSync(ctx, bankName, "Main", from, to)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, f.store.SaveSettings(ctx, model.Settings{}))
	_, err = f.svc.EnqueueSync(ctx, bankName, "Main", from, to)
	assert.ErrorIs(t, err, access.ErrDisabled)
}
