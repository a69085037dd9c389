package bank

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/events"
	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/model"
)

// SyncBank fetches the accounts of the requisition of bank name and merges
// them into its account rows. Accounts whose data cannot be fetched are
// skipped. Listeners get a reload event on success and a bank error event
// otherwise.
func (s *Service) SyncBank(ctx context.Context, name string) error {
	err := s.syncBank(ctx, name)
	if err != nil {
		s.activity.Error(component, "sync_bank", name, err)
		s.notifier.Notify(ctx, events.Event{
			Kind:    events.BankError,
			Bank:    name,
			Message: fmt.Sprintf("unable to sync bank accounts of bank %q: %v", name, err),
		})
		return err
	}
	s.notifier.Notify(ctx, events.Event{Kind: events.ReloadBankAccounts, Bank: name})
	return nil
}

func (s *Service) syncBank(ctx context.Context, name string) error {
	b, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if b.DocStatus == model.DocCancelled {
		return fmt.Errorf("%w: %q", ErrCancelled, name)
	}
	if b.AuthID == "" {
		return fmt.Errorf("bank %q has no authorization", name)
	}

	client, err := s.access.Client(ctx, b.Company)
	if err != nil {
		return err
	}
	req, err := client.GetRequisition(ctx, b.AuthID)
	if err != nil {
		return err
	}

	remotes, err := s.fetchAccounts(ctx, client, name, req.Accounts)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		return errors.New("no bank account data received")
	}

	var currency string
	if c, err := s.store.Company(ctx, b.Company); err == nil {
		currency = c.DefaultCurrency
	}
	rows, err := bankaccount.Prepare(remotes, b.BankName, currency)
	if err != nil {
		return err
	}

	var added []string
	err = s.store.UpdateBank(ctx, name, func(cur *model.Bank) error {
		added = bankaccount.Merge(cur, rows)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving accounts of %s: %w", name, err)
	}
	if len(added) > 0 {
		s.activity.Info(component, "sync_bank", name, fmt.Sprintf("bank link returned %d new bank accounts", len(added)))
	}
	return nil
}

// fetchAccounts loads data, details and balances of every account ID
// concurrently, keeping the input order and leaving out failed accounts.
func (s *Service) fetchAccounts(ctx context.Context, client *gocardless.Client, name string, ids []string) ([]bankaccount.Remote, error) {
	results := make([]*bankaccount.Remote, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchWorkers)
	for i, accountID := range ids {
		g.Go(func() error {
			r, err := fetchAccount(gctx, client, accountID)
			if err != nil {
				s.activity.Error(component, "fetch_account", name, err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remotes := make([]bankaccount.Remote, 0, len(ids))
	for _, r := range results {
		if r != nil {
			remotes = append(remotes, *r)
		}
	}
	return remotes, nil
}

func fetchAccount(ctx context.Context, client *gocardless.Client, accountID string) (*bankaccount.Remote, error) {
	acc, err := client.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	details, err := client.GetDetails(ctx, accountID)
	if err != nil {
		return nil, err
	}
	balances, err := client.GetBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &bankaccount.Remote{ID: accountID, Account: *acc, Details: *details, Balances: balances}, nil
}
