// Command gcsync-lambda runs the scheduled hooks from EventBridge rules.
//
// The hook comes from the "hook" field of the event detail, falling back to
// GCSYNC_HOOK. Configuration is read from GCSYNC_* variables and the optional
// file at GCSYNC_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/cleared-dev/gcsync/internal/app"
	"github.com/cleared-dev/gcsync/internal/config"
	"github.com/cleared-dev/gcsync/internal/logging"
	"github.com/cleared-dev/gcsync/internal/schedule"
)

type hookDetail struct {
	Hook string `json:"hook"`
}

type handler struct {
	once   sync.Once
	app    *app.App
	err    error
	logger *slog.Logger
}

func (h *handler) open(ctx context.Context) (*app.App, error) {
	h.once.Do(func() {
		cfg, err := loadConfig()
		if err != nil {
			h.err = err
			return
		}
		h.logger, err = logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, JSON: true})
		if err != nil {
			h.err = err
			return
		}
		h.app, h.err = app.Open(context.WithoutCancel(ctx), cfg, h.logger)
	})
	return h.app, h.err
}

func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	a, err := h.open(ctx)
	if err != nil {
		return err
	}

	hook := os.Getenv("GCSYNC_HOOK")
	if len(event.Detail) > 0 {
		var d hookDetail
		if err := json.Unmarshal(event.Detail, &d); err != nil {
			return fmt.Errorf("parsing event detail: %w", err)
		}
		if d.Hook != "" {
			hook = d.Hook
		}
	}
	if hook == "" {
		return fmt.Errorf("no hook in event %s", event.ID)
	}

	a.Logger.Info("running hook", "hook", hook, "event", event.ID)
	err = schedule.RunHook(ctx, a.Hooks, hook)
	a.Runner.Wait()
	return err
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := os.Getenv("GCSYNC_CONFIG"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	// Only /tmp is writable on Lambda.
	cfg.Log.ActivityDir = os.TempDir()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	h := &handler{}
	lambda.Start(h.handle)
}
