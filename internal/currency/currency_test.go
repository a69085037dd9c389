package currency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/activitylog"
	"github.com/cleared-dev/gcsync/internal/jobs"
	"github.com/cleared-dev/gcsync/internal/logging"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *jobs.Runner) {
	t.Helper()
	st := memory.New()
	runner := jobs.New(2, logging.Discard())
	t.Cleanup(runner.Wait)
	return NewService(st, runner, activitylog.NewRecorder("", logging.Discard())), st, runner
}

func TestStatus(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "EUR", Enabled: true}))
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "SEK"}))

	tests := []struct {
		name string
		want Status
	}{
		{"EUR", Enabled},
		{"SEK", Disabled},
		{"NOK", Missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Status(ctx, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_Cached(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	got, err := svc.Status(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, Missing, got)

	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "USD", Enabled: true}))
	got, _ = svc.Status(ctx, "USD")
	assert.Equal(t, Missing, got, "served from cache")

	svc.Forget("USD")
	got, _ = svc.Status(ctx, "USD")
	assert.Equal(t, Enabled, got)
}

func TestAddAndEnable(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "SEK"}))

	n, err := svc.Add(ctx, []string{"USD", "USD", "SEK"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := st.Currency(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.True(t, c.FromGocardless)

	n, err = svc.Enable(ctx, []string{"SEK", "USD", "NOK"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err = st.Currency(ctx, "SEK")
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.False(t, c.FromGocardless)
}

func TestEnsure(t *testing.T) {
	svc, st, runner := newService(t)
	ctx := context.Background()
	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "SEK"}))

	require.NoError(t, svc.Ensure(ctx, "USD"))
	require.NoError(t, svc.Ensure(ctx, "SEK"))
	runner.Wait()

	for _, name := range []string{"USD", "SEK"} {
		c, err := st.Currency(ctx, name)
		require.NoError(t, err)
		assert.True(t, c.Enabled, name)
	}
}

func TestAdd_CreatedAfterCached(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	got, err := svc.Status(ctx, "GBP")
	require.NoError(t, err)
	require.Equal(t, Missing, got)

	require.NoError(t, st.SaveCurrency(ctx, model.Currency{Name: "GBP"}))

	n, err := svc.Add(ctx, []string{"GBP"})
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := st.Currency(ctx, "GBP")
	require.NoError(t, err)
	assert.False(t, c.Enabled, "the user's record is kept")
	assert.False(t, c.FromGocardless)

	got, err = svc.Status(ctx, "GBP")
	require.NoError(t, err)
	assert.Equal(t, Disabled, got, "cache refreshed from the store")
}
