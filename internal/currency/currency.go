// Package currency adds and enables ledger currencies met while syncing.
package currency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/id"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

// Status is the ledger state of a currency.
type Status int

const (
	Missing Status = iota
	Disabled
	Enabled
)

func (s Status) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabled:
		return "enabled"
	default:
		return "missing"
	}
}

const (
	cacheSize = 512
	cacheTTL  = 15 * time.Minute
)

// Service looks up currency status and fixes missing or disabled ones.
type Service struct {
	store    store.Store
	runner   *jobs.Runner
	activity *activitylog.Recorder
	cache    *expirable.LRU[string, Status]
}

// NewService creates a Service. Add and enable jobs run on runner.
func NewService(st store.Store, runner *jobs.Runner, activity *activitylog.Recorder) *Service {
	return &Service{
		store:    st,
		runner:   runner,
		activity: activity,
		cache:    expirable.NewLRU[string, Status](cacheSize, nil, cacheTTL),
	}
}

// Status returns the status of the named currency.
func (s *Service) Status(ctx context.Context, name string) (Status, error) {
	if st, ok := s.cache.Get(name); ok {
		return st, nil
	}
	c, err := s.store.Currency(ctx, name)
	st := Missing
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Missing, fmt.Errorf("loading currency %s: %w", name, err)
	default:
		st = statusOf(c)
	}
	s.cache.Add(name, st)
	return st, nil
}

func statusOf(c model.Currency) Status {
	if c.Enabled {
		return Enabled
	}
	return Disabled
}

// Ensure queues a job adding name when it is missing or enabling it when disabled.
func (s *Service) Ensure(ctx context.Context, name string) error {
	st, err := s.Status(ctx, name)
	if err != nil {
		return err
	}
	switch st {
	case Missing:
		s.EnqueueAdd([]string{name})
	case Disabled:
		s.EnqueueEnable([]string{name})
	}
	return nil
}

// EnqueueAdd queues Add for names. It reports whether a job was started.
func (s *Service) EnqueueAdd(names []string) bool {
	names = slices.Clone(names)
	return s.runner.Enqueue(id.CurrenciesJobID(id.KindAddCurrencies, names), func(ctx context.Context) error {
		_, err := s.Add(ctx, names)
		return err
	})
}

// EnqueueEnable queues Enable for names. It reports whether a job was started.
func (s *Service) EnqueueEnable(names []string) bool {
	names = slices.Clone(names)
	return s.runner.Enqueue(id.CurrenciesJobID(id.KindEnableCurrencies, names), func(ctx context.Context) error {
		_, err := s.Enable(ctx, names)
		return err
	})
}

// Add creates the missing currencies among names, enabled and tagged as
// synced. It returns how many were created. The store is checked directly
// since a cached Missing may be stale.
func (s *Service) Add(ctx context.Context, names []string) (int, error) {
	n := 0
	var errs []error
	for _, name := range unique(names) {
		c, err := s.store.Currency(ctx, name)
		switch {
		case err == nil:
			s.cache.Add(name, statusOf(c))
			continue
		case !errors.Is(err, store.ErrNotFound):
			errs = append(errs, fmt.Errorf("loading currency %s: %w", name, err))
			continue
		}
		if err := s.store.SaveCurrency(ctx, model.Currency{Name: name, Enabled: true, FromGocardless: true}); err != nil {
			s.activity.Error("currency", "add", name, err)
			errs = append(errs, fmt.Errorf("adding currency %s: %w", name, err))
			continue
		}
		s.cache.Add(name, Enabled)
		n++
	}
	return n, errors.Join(errs...)
}

// Enable enables the disabled currencies among names. It returns how many
// were changed.
func (s *Service) Enable(ctx context.Context, names []string) (int, error) {
	n := 0
	var errs []error
	for _, name := range unique(names) {
		c, err := s.store.Currency(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("loading currency %s: %w", name, err))
			continue
		}
		if c.Enabled {
			continue
		}
		c.Enabled = true
		if err := s.store.SaveCurrency(ctx, c); err != nil {
			s.activity.Error("currency", "enable", name, err)
			errs = append(errs, fmt.Errorf("enabling currency %s: %w", name, err))
			continue
		}
		s.cache.Add(name, Enabled)
		n++
	}
	return n, errors.Join(errs...)
}

// Forget drops name from the status cache.
func (s *Service) Forget(name string) {
	s.cache.Remove(name)
}

func unique(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
