package access

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/logging"
	"github.com/cleared-dev/gcsync/internal/model"
	"github.com/cleared-dev/gcsync/internal/store/memory"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type tokenServer struct {
	newCalls     atomic.Int32
	refreshCalls atomic.Int32
	refreshFails bool
}

func (ts *tokenServer) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/token/new/":
		ts.newCalls.Add(1)
		_, _ = io.WriteString(w, `{"access":"new-access","access_expires":86400,"refresh":"new-refresh","refresh_expires":2592000}`)
	case "/token/refresh/":
		ts.refreshCalls.Add(1)
		if ts.refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"summary":"Invalid token","detail":"Token is invalid or expired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"refreshed-access","access_expires":3600}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setup(t *testing.T, acc model.Access, ts *tokenServer) (*Service, *memory.Store) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	t.Cleanup(srv.Close)

	st := memory.New()
	require.NoError(t, st.SaveSettings(context.Background(), model.Settings{Enabled: true}))
	require.NoError(t, st.SaveAccess(context.Background(), acc))

	svc := NewService(st, logging.Discard(), gocardless.WithBaseURL(srv.URL))
	svc.now = func() time.Time { return now }
	return svc, st
}

func TestClient_ReusesValidToken(t *testing.T) {
	ts := &tokenServer{}
	svc, _ := setup(t, model.Access{
		Company: "Acme", SecretID: "id", SecretKey: "key",
		AccessToken: "cached", AccessExpiry: now.Add(time.Hour),
	}, ts)

	c, err := svc.Client(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "cached", c.AccessToken())
	assert.Zero(t, ts.newCalls.Load())
	assert.Zero(t, ts.refreshCalls.Load())
}

func TestClient_Refreshes(t *testing.T) {
	ts := &tokenServer{}
	svc, st := setup(t, model.Access{
		Company: "Acme", SecretID: "id", SecretKey: "key",
		AccessToken: "old", AccessExpiry: now.Add(-time.Minute),
		RefreshToken: "refresh", RefreshExpiry: now.Add(24 * time.Hour),
	}, ts)

	c, err := svc.Client(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", c.AccessToken())
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Zero(t, ts.newCalls.Load())

	acc, err := st.Access(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", acc.AccessToken)
	assert.Equal(t, now.Add(time.Hour), acc.AccessExpiry)
	assert.Equal(t, "refresh", acc.RefreshToken)
}

func TestClient_ConnectsWhenRefreshExpired(t *testing.T) {
	ts := &tokenServer{}
	svc, st := setup(t, model.Access{
		Company: "Acme", SecretID: "id", SecretKey: "key",
		RefreshToken: "refresh", RefreshExpiry: now.Add(-time.Hour),
	}, ts)

	c, err := svc.Client(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "new-access", c.AccessToken())
	assert.Zero(t, ts.refreshCalls.Load())

	acc, err := st.Access(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", acc.RefreshToken)
	assert.Equal(t, now.Add(30*24*time.Hour), acc.RefreshExpiry)
}

func TestClient_ConnectsWhenRefreshRejected(t *testing.T) {
	ts := &tokenServer{refreshFails: true}
	svc, _ := setup(t, model.Access{
		Company: "Acme", SecretID: "id", SecretKey: "key",
		RefreshToken: "refresh", RefreshExpiry: now.Add(time.Hour),
	}, ts)

	c, err := svc.Client(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "new-access", c.AccessToken())
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, int32(1), ts.newCalls.Load())
}

func TestClient_Errors(t *testing.T) {
	ts := &tokenServer{}
	svc, st := setup(t, model.Access{Company: "Acme"}, ts)
	ctx := context.Background()

	_, err := svc.Client(ctx, "Other")
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = svc.Client(ctx, "Acme")
	assert.ErrorIs(t, err, ErrUnauthorized, "empty secrets cannot connect")

	require.NoError(t, st.SaveSettings(ctx, model.Settings{Enabled: false}))
	_, err = svc.Client(ctx, "Acme")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestValidateCredentials(t *testing.T) {
	key := strings.Repeat("a1B2", 32)
	assert.NoError(t, ValidateCredentials("8a1b2c3d-1234-4abc-9def-0123456789ab", key))
	assert.Error(t, ValidateCredentials("not-a-uuid", key))
	assert.Error(t, ValidateCredentials("8a1b2c3d-1234-4abc-9def-0123456789ab", "short"))
	assert.Error(t, ValidateCredentials("8a1b2c3d-1234-4abc-9def-0123456789ab", strings.Repeat("-", 128)))
}
