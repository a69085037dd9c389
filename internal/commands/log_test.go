package commands_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/activitylog"
)

func TestLog(t *testing.T) {
	cfgPath := writeConfig(t)
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, activitylog.Append(filepath.Dir(cfgPath), []activitylog.Entry{
		{Timestamp: ts, Level: activitylog.LevelInfo, Component: "bank", Action: "authorize", Ref: "Nordea - Acme", Details: "linked requisition req-1"},
		{Timestamp: ts.Add(time.Minute), Level: activitylog.LevelError, Component: "banktx", Action: "sync", Ref: "Main", Details: "window 2025-03-09..2025-03-10: boom"},
		{Timestamp: ts.Add(2 * time.Minute), Level: activitylog.LevelError, Component: "banktx", Action: "balances", Ref: "Savings", Details: "unavailable"},
	}))

	out, err := runGcsync(t, nil, "log", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "linked requisition req-1")
	assert.Contains(t, out, "unavailable")

	out, err = runGcsync(t, nil, "log", "--config", cfgPath, "--level", "error", "--ref", "Main")
	require.NoError(t, err, out)
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "linked requisition")
	assert.NotContains(t, out, "unavailable")

	out, err = runGcsync(t, nil, "log", "--config", cfgPath, "-n", "1")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "unavailable")
}

func TestLog_Empty(t *testing.T) {
	out, err := runGcsync(t, nil, "log", "--config", writeConfig(t))
	require.NoError(t, err, out)
	assert.Contains(t, out, "No activity")
}

func TestLog_UnknownLevel(t *testing.T) {
	out, err := runGcsync(t, nil, "log", "--config", writeConfig(t), "--level", "debug")
	require.Error(t, err)
	assert.Contains(t, out, `unknown level "debug"`)
}
