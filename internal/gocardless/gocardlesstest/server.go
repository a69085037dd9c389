// Package gocardlesstest provides an in-process fake of the Bank Account
// Data API for tests.
package gocardlesstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cleared-dev/gcsync/internal/gocardless"
)

// Account is the fake state of one account.
type Account struct {
	Status           string
	IBAN             string
	Name             string
	Currency         string
	CashType         string
	ResourceID       string
	Balances         []map[string]any
	Booked           []map[string]any
	Pending          []map[string]any
	FailDetails      bool
	FailBalances     bool
	// FailTransactions makes the transactions endpoint answer 500.
	FailTransactions bool
}

// Server is a fake API. Set the exported maps before the first request and
// use SetAccount afterwards.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	Institutions []gocardless.Institution
	Requisitions map[string][]string
	Accounts     map[string]*Account
	// Deleted lists the requisition IDs that were deleted.
	Deleted []string
	// Requests counts requests per path.
	Requests map[string]int
	// Queries records the raw query of every transactions request.
	Queries []string
}

// New starts a Server closed when t ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Requisitions: make(map[string][]string),
		Accounts:     make(map[string]*Account),
		Requests:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Option points a client at the Server.
func (s *Server) Option() gocardless.Option {
	return gocardless.WithBaseURL(s.URL)
}

// SetAccount replaces the fake state of an account.
func (s *Server) SetAccount(id string, a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Accounts[id] = a
}

// Count returns the number of requests made to path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Requests[path]
}

// TransactionQueries returns the raw queries of the transactions requests.
func (s *Server) TransactionQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Queries...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests[r.URL.Path]++

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/token/new/":
		write(w, http.StatusOK, map[string]any{"access": "access-token", "access_expires": 86400, "refresh": "refresh-token", "refresh_expires": 2592000})
	case r.URL.Path == "/token/refresh/":
		write(w, http.StatusOK, map[string]any{"access": "access-token", "access_expires": 86400})
	case parts[0] == "institutions":
		write(w, http.StatusOK, s.Institutions)
	case r.URL.Path == "/agreements/enduser/":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		write(w, http.StatusCreated, map[string]any{
			"id":                    "agreement-1",
			"institution_id":        body["institution_id"],
			"max_historical_days":   body["max_historical_days"],
			"access_valid_for_days": body["access_valid_for_days"],
		})
	case r.URL.Path == "/requisitions/" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		write(w, http.StatusCreated, map[string]any{
			"id":             "req-1",
			"redirect":       body["redirect"],
			"reference":      body["reference"],
			"institution_id": body["institution_id"],
			"agreement":      body["agreement"],
			"user_language":  body["user_language"],
			"status":         "CR",
			"link":           "https://ob.example.test/psd2/start/req-1",
		})
	case parts[0] == "requisitions" && len(parts) == 2:
		accounts, ok := s.Requisitions[parts[1]]
		if !ok {
			notFound(w)
			return
		}
		if r.Method == http.MethodDelete {
			s.Deleted = append(s.Deleted, parts[1])
			delete(s.Requisitions, parts[1])
			write(w, http.StatusOK, map[string]any{"summary": "Requisition deleted"})
			return
		}
		write(w, http.StatusOK, map[string]any{"id": parts[1], "status": "LN", "accounts": accounts})
	case parts[0] == "accounts" && len(parts) >= 2:
		s.handleAccount(w, r, parts[1], parts[2:])
	default:
		notFound(w)
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	a, ok := s.Accounts[id]
	if !ok {
		notFound(w)
		return
	}
	switch {
	case len(rest) == 0:
		write(w, http.StatusOK, map[string]any{"id": id, "iban": a.IBAN, "status": a.Status})
	case rest[0] == "details":
		if a.FailDetails {
			write(w, http.StatusServiceUnavailable, map[string]any{"summary": "Service unavailable", "detail": "try again later"})
			return
		}
		write(w, http.StatusOK, map[string]any{"account": map[string]any{
			"resourceId":      a.ResourceID,
			"iban":            a.IBAN,
			"currency":        a.Currency,
			"name":            a.Name,
			"cashAccountType": a.CashType,
		}})
	case rest[0] == "balances":
		if a.FailBalances {
			write(w, http.StatusServiceUnavailable, map[string]any{"summary": "Service unavailable", "detail": "try again later"})
			return
		}
		balances := a.Balances
		if balances == nil {
			balances = []map[string]any{{
				"balanceAmount": map[string]any{"amount": "100.00", "currency": a.Currency},
				"balanceType":   "closingBooked",
				"referenceDate": "2025-03-01",
			}}
		}
		write(w, http.StatusOK, map[string]any{"balances": balances})
	case rest[0] == "transactions":
		s.Queries = append(s.Queries, r.URL.RawQuery)
		if a.FailTransactions {
			write(w, http.StatusInternalServerError, map[string]any{"summary": "Internal server error", "detail": "try again later", "status_code": 500})
			return
		}
		write(w, http.StatusOK, map[string]any{"transactions": map[string]any{
			"booked":  nonNil(a.Booked),
			"pending": nonNil(a.Pending),
		}})
	default:
		notFound(w)
	}
}

func nonNil(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

func notFound(w http.ResponseWriter) {
	write(w, http.StatusNotFound, map[string]any{"summary": "Not found.", "detail": "Not found.", "status_code": 404})
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("encoding fake response: %v", err))
	}
}
