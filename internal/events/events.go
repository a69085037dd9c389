// Package events publishes sync notifications to interested listeners.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Kind names an event.
type Kind string

const (
	BankError          Kind = "gocardless_bank_error"
	ReloadBankAccounts Kind = "gocardless_reload_bank_accounts"
	StatusChanged      Kind = "gocardless_status_changed"
)

// Event is one notification.
type Event struct {
	Kind    Kind
	Bank    string
	Account string
	Message string
	Data    map[string]any
}

// Notifier receives events.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier writes events to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Event) {
	level := slog.LevelInfo
	if e.Kind == BankError {
		level = slog.LevelError
	}
	attrs := []any{"event", string(e.Kind), "bank", e.Bank}
	if e.Account != "" {
		attrs = append(attrs, "account", e.Account)
	}
	for k, v := range e.Data {
		attrs = append(attrs, k, v)
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	n.logger.Log(ctx, level, msg, attrs...)
}

// Collector keeps every event it receives.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Notifier.
func (c *Collector) Notify(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of the received events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Of returns the received events of kind k.
func (c *Collector) Of(k Kind) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}
