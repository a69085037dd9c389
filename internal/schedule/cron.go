package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cleared-dev/gcsync/internal/config"
)

// Hook names.
const (
	HookAutoSync          = "auto_sync"
	HookUpdateBanksStatus = "update_banks_status"
)

// hookTimeout bounds one run of a hook.
const hookTimeout = 20 * time.Minute

// Scheduler runs Hooks on cron specs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers the hooks on the specs of cfg. An empty spec
// leaves its hook unscheduled.
func NewScheduler(h *Hooks, cfg config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	s := &Scheduler{cron: c, logger: logger}

	for _, e := range []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{HookAutoSync, cfg.AutoSync, h.AutoSync},
		{HookUpdateBanksStatus, cfg.UpdateStatus, h.UpdateBanksStatus},
	} {
		if e.spec == "" {
			continue
		}
		if _, err := c.AddFunc(e.spec, s.wrap(e.name, e.run)); err != nil {
			return nil, fmt.Errorf("scheduling %s %q: %w", e.name, e.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		start := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("scheduled hook failed", "hook", name, "err", err)
			return
		}
		s.logger.Info("scheduled hook done", "hook", name, "took", time.Since(start).Round(time.Millisecond))
	}
}

// Entries returns the number of scheduled hooks.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running hooks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// RunHook runs the hook named name once.
func RunHook(ctx context.Context, h *Hooks, name string) error {
	switch name {
	case HookAutoSync:
		return h.AutoSync(ctx)
	case HookUpdateBanksStatus:
		return h.UpdateBanksStatus(ctx)
	default:
		return fmt.Errorf("unknown hook %q", name)
	}
}
