package gocardless

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c.SetAccessToken("tok")
	return c
}

func TestNewToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token/new/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id", body["secret_id"])
		assert.Equal(t, "key", body["secret_key"])

		_, _ = io.WriteString(w, `{"access":"a","access_expires":86400,"refresh":"r","refresh_expires":2592000}`)
	})

	tok, err := c.NewToken(context.Background(), "id", "key")
	require.NoError(t, err)
	assert.Equal(t, "a", tok.Access)
	assert.Equal(t, 86400, tok.AccessExpires)
	assert.Equal(t, "r", tok.Refresh)
}

func TestNewToken_Invalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access":"a","access_expires":86400}`)
	})

	_, err := c.NewToken(context.Background(), "id", "key")
	assert.ErrorContains(t, err, "invalid")

	_, err = c.NewToken(context.Background(), "", "key")
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/refresh/", r.URL.Path)
		_, _ = io.WriteString(w, `{"access":"b","access_expires":3600}`)
	})

	tok, err := c.RefreshToken(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "b", tok.Access)
}

func TestListInstitutions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/institutions/", r.URL.Path)
		assert.Equal(t, "gb", r.URL.Query().Get("country"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"id":"REVOLUT_REVOGB21","name":"Revolut","transaction_total_days":"730","countries":["GB"]},
			{"id":"MONZO_MONZGB2L","name":"Monzo","transaction_total_days":540}]`)
	})

	list, err := c.ListInstitutions(context.Background(), "GB")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, FlexInt(730), list[0].TransactionTotalDays)
	assert.Equal(t, FlexInt(540), list[1].TransactionTotalDays)
}

func TestRequiresAccessToken(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:0"))
	_, err := c.ListInstitutions(context.Background(), "GB")
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestCreateLink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/agreements/enduser/":
			assert.Equal(t, "REVOLUT_REVOGB21", body["institution_id"])
			assert.EqualValues(t, 540, body["max_historical_days"])
			assert.EqualValues(t, 180, body["access_valid_for_days"])
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"ag-1","access_valid_for_days":90}`)
		case "/requisitions/":
			assert.Equal(t, "ag-1", body["agreement"])
			assert.Equal(t, "ref-1", body["reference"])
			assert.Equal(t, "EN", body["user_language"])
			assert.Equal(t, "https://sync.example.com/callback/Revolut", body["redirect"])
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"req-1","link":"https://ob.gocardless.com/start/req-1","status":"CR"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	req, err := c.CreateLink(context.Background(), LinkParams{
		InstitutionID:     "REVOLUT_REVOGB21",
		Reference:         "ref-1",
		Redirect:          "https://sync.example.com/callback/Revolut",
		MaxHistoricalDays: 540,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, 90, req.AccessValidForDays)
	assert.Equal(t, "https://ob.gocardless.com/start/req-1", req.Link)
}

func TestGetAccount_Status(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"acc-1","status":"EXPIRED","iban":"GB33BUKB20201555555555"}`)
	})

	acc, err := c.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.EqualValues(t, "Expired", acc.Status)
}

func TestGetBalances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acc-1/balances/", r.URL.Path)
		_, _ = io.WriteString(w, `{"balances":[
			{"balanceAmount":{"amount":"657.49","currency":"EUR"},"balanceType":"interimAvailable","referenceDate":"2025-03-01"}]}`)
	})

	balances, err := c.GetBalances(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "657.49", balances[0].Amount.String())
	assert.Equal(t, "EUR", balances[0].Currency)
	assert.Equal(t, "temp_balance", balances[0].Key)
	assert.Equal(t, "2025-03-01", balances[0].Date)
}

func TestGetBalances_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"balances":[]}`)
	})

	_, err := c.GetBalances(context.Background(), "acc-1")
	assert.ErrorContains(t, err, "empty")
}

func TestGetDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"account":{"resourceId":"534252452","iban":"GB33BUKB20201555555555","currency":"GBP","name":"Main","cashAccountType":"CACC"}}`)
	})

	d, err := c.GetDetails(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Main", d.Name)
	assert.Equal(t, "CACC", d.CashAccountType)
	assert.Equal(t, "534252452", d.ResourceID)
}

func TestGetTransactions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-03-01", r.URL.Query().Get("date_from"))
		assert.Equal(t, "2025-03-02", r.URL.Query().Get("date_to"))
		_, _ = io.WriteString(w, `{"transactions":{
			"booked":[{"transactionId":"t1","bookingDate":"2025-03-01","transactionAmount":{"amount":"-10.00","currency":"EUR"}}],
			"pending":[]}}`)
	})

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	txs, err := c.GetTransactions(context.Background(), "acc-1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, txs.Booked, 1)
	assert.Equal(t, "t1", txs.Booked[0]["transactionId"])
	assert.Empty(t, txs.Pending)
}

func TestDo_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"summary":"Invalid token","detail":"Token is invalid or expired","status_code":401}`)
	})

	err := c.DeleteRequisition(context.Background(), "req-1")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid token", apiErr.Title)
	assert.Equal(t, "Token is invalid or expired", apiErr.Message)
}
