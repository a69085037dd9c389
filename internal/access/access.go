// Package access hands out API clients authorized for a company, reusing,
// refreshing or renewing the stored tokens as their expiries require.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store"
)

var (
	// ErrDisabled is returned when syncing is switched off in the settings.
	ErrDisabled = errors.New("gocardless sync is disabled")
	// ErrNoCredentials is returned when a company has no access row.
	ErrNoCredentials = errors.New("no gocardless credentials for company")
	// ErrUnauthorized is returned when no token could be obtained.
	ErrUnauthorized = errors.New("unable to gain authorized access to gocardless")
)

var (
	secretIDPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	secretKeyPattern = regexp.MustCompile(`^[0-9a-zA-Z]{128}$`)
)

// ValidateCredentials checks the shape of a secret id and key.
func ValidateCredentials(secretID, secretKey string) error {
	if !secretIDPattern.MatchString(secretID) {
		return fmt.Errorf("secret id %q is not a valid UUID", secretID)
	}
	if !secretKeyPattern.MatchString(secretKey) {
		return errors.New("secret key must be 128 alphanumeric characters")
	}
	return nil
}

// Service builds authorized clients.
type Service struct {
	store   store.Store
	options []gocardless.Option
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an access Service. options are applied to every client.
func NewService(st store.Store, logger *slog.Logger, options ...gocardless.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	options = append([]gocardless.Option{gocardless.WithLogger(logger)}, options...)
	return &Service{store: st, options: options, logger: logger, now: time.Now}
}

// Enabled reports whether syncing is switched on.
func (s *Service) Enabled(ctx context.Context) (bool, error) {
	cfg, err := s.store.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("loading settings: %w", err)
	}
	return cfg.Enabled, nil
}

// Client returns a client authorized for company.
func (s *Service) Client(ctx context.Context, company string) (*gocardless.Client, error) {
	enabled, err := s.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrDisabled
	}

	acc, err := s.store.Access(ctx, company)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w %q", ErrNoCredentials, company)
	}
	if err != nil {
		return nil, fmt.Errorf("loading access of %s: %w", company, err)
	}

	c := gocardless.New(s.options...)
	now := s.now()

	if acc.AccessToken != "" && now.Before(acc.AccessExpiry) {
		c.SetAccessToken(acc.AccessToken)
		return c, nil
	}

	if acc.RefreshToken != "" && now.Before(acc.RefreshExpiry) {
		tok, err := c.RefreshToken(ctx, acc.RefreshToken)
		if err == nil {
			acc.AccessToken = tok.Access
			acc.AccessExpiry = now.Add(time.Duration(tok.AccessExpires) * time.Second)
			return s.authorize(ctx, c, acc)
		}
		s.logger.Warn("refreshing access token failed, reconnecting", "company", company, "err", err)
	}

	tok, err := c.NewToken(ctx, acc.SecretID, acc.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrUnauthorized, company, err)
	}
	acc.AccessToken = tok.Access
	acc.AccessExpiry = now.Add(time.Duration(tok.AccessExpires) * time.Second)
	acc.RefreshToken = tok.Refresh
	acc.RefreshExpiry = now.Add(time.Duration(tok.RefreshExpires) * time.Second)
	return s.authorize(ctx, c, acc)
}

func (s *Service) authorize(ctx context.Context, c *gocardless.Client, acc model.Access) (*gocardless.Client, error) {
	if err := s.store.SaveAccess(ctx, acc); err != nil {
		return nil, fmt.Errorf("saving access of %s: %w", acc.Company, err)
	}
	c.SetAccessToken(acc.AccessToken)
	return c, nil
}
