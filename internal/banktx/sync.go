package banktx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/currency"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

// Job is one queued transaction sync of an account.
type Job struct {
	Bank    string
	Account string
	Trigger model.SyncTrigger
	Windows []Window
}

// SyncTransactions fetches and imports the transactions of every window of
// job. Each window gets its own sync log. When any transactions came back
// the account's last sync moves to the end of the last such window and its
// balances are refreshed.
func (s *Service) SyncTransactions(ctx context.Context, job Job) error {
	if _, ok := s.syncing.Get(job.Account); ok {
		return fmt.Errorf("%w: %q", ErrInProgress, job.Account)
	}
	s.syncing.Add(job.Account, s.now())
	defer s.syncing.Remove(job.Account)

	b, err := s.store.Bank(ctx, job.Bank)
	if err != nil {
		return fmt.Errorf("gocardless bank %q: %w", job.Bank, err)
	}
	row := b.Account(job.Account)
	if row == nil {
		return fmt.Errorf("%w: %q of %q", ErrUnknownAccount, job.Account, job.Bank)
	}
	cfg, err := s.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	client, err := s.access.Client(ctx, b.Company)
	if err != nil {
		s.activity.Error(component, "sync", job.Account, err)
		return err
	}

	s.logger.Info("bank account transactions sync started", "bank", b.Name, "account", row.Account)

	w := &worker{svc: s, cfg: cfg, client: client, bank: b, row: *row}
	var errs []error
	var lastSynced time.Time
	total := 0
	for _, win := range job.Windows {
		n, synced, err := w.syncWindow(ctx, job.Trigger, win)
		total += n
		if err != nil {
			s.activity.Error(component, "sync", row.Account, fmt.Errorf("window %s: %w", win, err))
			errs = append(errs, err)
		}
		if synced && win.To.After(lastSynced) {
			lastSynced = win.To
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	if !lastSynced.IsZero() {
		if err := w.updateAccount(ctx, lastSynced); err != nil {
			errs = append(errs, err)
		}
	}
	s.activity.Info(component, "sync", row.Account, fmt.Sprintf("imported %d transactions over %d windows", total, len(job.Windows)))
	err = errors.Join(errs...)
	if err != nil {
		s.notifier.Notify(ctx, events.Event{
			Kind:    events.BankError,
			Bank:    b.Name,
			Account: row.Account,
			Message: fmt.Sprintf("there were errors while syncing bank account %q of %s", row.Account, b.Name),
		})
	}
	return err
}

type worker struct {
	svc    *Service
	cfg    model.Settings
	client *gocardless.Client
	bank   model.Bank
	row    model.BankAccount
}

// syncWindow imports the transactions of one window. synced reports whether
// the API returned any transactions.
func (w *worker) syncWindow(ctx context.Context, trigger model.SyncTrigger, win Window) (inserted int, synced bool, err error) {
	s := w.svc
	log := model.SyncLog{
		ID:       id.SyncID(),
		Bank:     w.bank.Name,
		Account:  w.row.Account,
		FromDate: win.From,
		ToDate:   win.To,
		Trigger:  trigger,
		Status:   model.SyncPending,
		Created:  s.now(),
	}
	if err := s.store.InsertSyncLog(ctx, log); err != nil {
		return 0, false, fmt.Errorf("writing sync log: %w", err)
	}
	log.Status = model.SyncOngoing
	if err := s.store.UpdateSyncLog(ctx, log); err != nil {
		return 0, false, fmt.Errorf("updating sync log: %w", err)
	}
	defer func() {
		log.Status = model.SyncFinished
		log.Transactions = inserted
		if uerr := s.store.UpdateSyncLog(context.WithoutCancel(ctx), log); uerr != nil {
			err = errors.Join(err, fmt.Errorf("finishing sync log: %w", uerr))
		}
	}()

	txns, err := w.client.GetTransactions(ctx, w.row.AccountID, win.From, win.To)
	if err != nil {
		return 0, false, err
	}

	var errs []error
	for _, set := range []struct {
		pending bool
		raw     []map[string]any
	}{
		{false, txns.Booked},
		{true, txns.Pending},
	} {
		if len(set.raw) == 0 {
			continue
		}
		synced = true
		list := s.mappers.Apply(w.bank.BankID, gocardless.PrepareTransactions(set.raw))
		for _, t := range list {
			ok, err := w.addTransaction(ctx, t, set.pending)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				inserted++
			}
		}
	}
	return inserted, synced, errors.Join(errs...)
}

// addTransaction inserts t into the ledger. It returns false without an
// error when the settings say t is to be skipped or it already exists.
func (w *worker) addTransaction(ctx context.Context, t gocardless.Transaction, pending bool) (bool, error) {
	s := w.svc
	cfg := w.cfg
	kind := "booked"
	if pending {
		kind = "pending"
	}

	if t.TransactionID == "" {
		if cfg.OnlySyncTransactionsWithID {
			s.logger.Debug("transaction without id ignored", "account", w.row.Account, "kind", kind)
			return false, nil
		}
		t.TransactionID = id.TransactionID(t.Payload())
	}

	if t.Date == "" {
		return false, w.skip(cfg.IgnoreTransactionsWithoutDate, "the new %s transaction for bank account %q has no date", kind, w.row.Account)
	}
	date, err := parseDate(t.Date)
	if err != nil {
		return false, w.skip(cfg.IgnoreTransactionsWithoutDate, "the new %s transaction for bank account %q has an invalid date %q", kind, w.row.Account, t.Date)
	}
	if t.Amount == "" {
		return false, w.skip(cfg.IgnoreTransactionsWithoutAmount, "the new %s transaction for bank account %q has no amount value", kind, w.row.Account)
	}
	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return false, w.skip(cfg.IgnoreTransactionsWithoutAmount, "the new %s transaction for bank account %q has an invalid amount %q", kind, w.row.Account, t.Amount)
	}
	if t.Currency == "" {
		return false, w.skip(cfg.IgnoreTransactionsWithoutCurrency, "the new %s transaction for bank account %q has no currency value", kind, w.row.Account)
	}
	st, err := s.currencies.Status(ctx, t.Currency)
	if err != nil {
		return false, err
	}
	switch {
	case st == currency.Missing:
		return false, w.skip(cfg.IgnoreTransactionsWithoutExistingCurrency, "the new %s transaction currency (%s) for bank account %q does not exist", kind, t.Currency, w.row.Account)
	case st == currency.Disabled && cfg.IgnoreTransactionsWithoutEnabledCurrency:
		return false, nil
	}

	exists, err := s.store.TransactionExists(ctx, t.TransactionID)
	if err != nil {
		return false, fmt.Errorf("checking transaction %s: %w", t.TransactionID, err)
	}
	if exists {
		return false, nil
	}

	bt := model.BankTransaction{
		Name:            uuid.NewString(),
		Date:            date,
		Status:          model.TransactionSettled,
		BankAccount:     w.row.BankAccountRef,
		Currency:        t.Currency,
		Description:     t.Description,
		Information:     t.Information,
		ReferenceNumber: t.ReferenceNumber,
		TransactionID:   t.TransactionID,
		FromGocardless:  true,
	}
	if pending {
		bt.Status = model.TransactionPending
	}
	bt.SetAmount(amount)

	ledgerBank := w.bank.BankRef
	if err := w.resolveParty(ctx, &bt, model.PartySupplier, ledgerBank, t.Supplier); err != nil {
		s.activity.Error(component, "supplier", w.row.Account, err)
	}
	if bt.Party == "" {
		if err := w.resolveParty(ctx, &bt, model.PartyCustomer, ledgerBank, t.Customer); err != nil {
			s.activity.Error(component, "customer", w.row.Account, err)
		}
	}

	if err := s.store.InsertTransaction(ctx, bt); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("unable to add new %s transaction for bank account %q: %w", kind, w.row.Account, err)
	}
	return true, nil
}

// resolveParty links bt to the supplier or customer p names, creating the
// party and its bank account when the settings allow.
func (w *worker) resolveParty(ctx context.Context, bt *model.BankTransaction, typ model.PartyType, ledgerBank string, p gocardless.Party) error {
	s := w.svc
	cfg := w.cfg

	add, create, createAccount := cfg.AddSupplierInfoIfAvailable, cfg.CreateSupplierIfDoesNotExist, cfg.CreateSupplierBankAccountIfDoesNotExist
	group, territory := cfg.SupplierDefaultGroup, ""
	canCreate := group != ""
	if typ == model.PartyCustomer {
		add, create, createAccount = cfg.AddCustomerInfoIfAvailable, cfg.CreateCustomerIfDoesNotExist, cfg.CreateCustomerBankAccountIfDoesNotExist
		group, territory = cfg.CustomerDefaultGroup, cfg.CustomerDefaultTerritory
		canCreate = group != "" && territory != ""
	}
	if !add || p.Empty() {
		return nil
	}

	party, err := s.store.Party(ctx, typ, p.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !create || !canCreate {
			s.logger.Info("party ignored", "type", typ, "name", p.Name)
			return nil
		}
		party = model.Party{Type: typ, Name: p.Name, Group: group, Territory: territory, Kind: model.IndividualParty, FromGocardless: true}
		if err := s.store.SaveParty(ctx, party); err != nil {
			return fmt.Errorf("unable to create new %s %q: %w", typ, p.Name, err)
		}
	case err != nil:
		return fmt.Errorf("loading %s %q: %w", typ, p.Name, err)
	}
	bt.PartyType = typ
	bt.Party = party.Name

	account := p.IBAN
	if account == "" {
		account = p.Account
	}
	if account == "" || ledgerBank == "" {
		return nil
	}
	name, err := s.accounts.AddPartyBankAccount(ctx, party.Name, typ, ledgerBank, account, createAccount)
	if err != nil || name == "" {
		return err
	}
	if party.DefaultBankAccount != name {
		party.DefaultBankAccount = name
		if err := s.store.SaveParty(ctx, party); err != nil {
			return fmt.Errorf("setting default bank account of %s %q: %w", typ, party.Name, err)
		}
	}
	return nil
}

// updateAccount records the last sync at the current time of day on
// lastDay and refreshes the balances.
func (w *worker) updateAccount(ctx context.Context, lastDay time.Time) error {
	s := w.svc
	now := s.now().UTC()
	y, m, d := lastDay.Date()
	lastSync := time.Date(y, m, d, now.Hour(), now.Minute(), now.Second(), 0, time.UTC)

	var balances string
	if list, err := w.client.GetBalances(ctx, w.row.AccountID); err != nil {
		s.activity.Error(component, "balances", w.row.Account, err)
	} else if balances, err = bankaccount.EncodeBalances(list); err != nil {
		s.activity.Error(component, "balances", w.row.Account, err)
	}

	err := s.store.UpdateBankAccount(ctx, w.bank.Name, w.row.Account, func(row *model.BankAccount) error {
		row.LastSync = lastSync
		if balances != "" {
			row.Balances = balances
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %q of %q", ErrUnknownAccount, w.row.Account, w.bank.Name)
	}
	if err != nil {
		return fmt.Errorf("saving account %s of %s: %w", w.row.Account, w.bank.Name, err)
	}
	return nil
}

// skip reports a skipped transaction as an error unless ignore is set.
func (w *worker) skip(ignore bool, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if ignore {
		w.svc.logger.Info(msg + ", ignored")
		return nil
	}
	return errors.New(msg)
}

func parseDate(v string) (time.Time, error) {
	if len(v) > len(time.DateOnly) {
		v = v[:len(time.DateOnly)]
	}
	return time.Parse(time.DateOnly, v)
}
