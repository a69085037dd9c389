package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	n.Notify(context.Background(), Event{Kind: BankError, Bank: "Nordea", Message: "requisition expired"})
	n.Notify(context.Background(), Event{Kind: ReloadBankAccounts, Bank: "Nordea"})

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="requisition expired"`)
	assert.Contains(t, out, "event=gocardless_reload_bank_accounts")
}

func TestMultiAndCollector(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	m := Multi{a, b}

	m.Notify(context.Background(), Event{Kind: StatusChanged, Bank: "Nordea"})
	m.Notify(context.Background(), Event{Kind: BankError, Bank: "Nordea"})

	require.Len(t, a.Events(), 2)
	require.Len(t, b.Of(BankError), 1)
	assert.Equal(t, "Nordea", b.Of(StatusChanged)[0].Bank)
}
