// Package httpapi serves the sync operations as a JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cleared-dev/gcsync/internal/access"
	"github.com/cleared-dev/gcsync/internal/bank"
	"github.com/cleared-dev/gcsync/internal/bankaccount"
	"github.com/cleared-dev/gcsync/internal/banktx"
	"github.com/cleared-dev/gcsync/internal/gocardless"
	"github.com/cleared-dev/gcsync/internal/store"
)

// Result is the body of every response.
type Result struct {
	Error    string `json:"error,omitempty"`
	Info     string `json:"info,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Handler routes API requests to the services.
type Handler struct {
	banks    *bank.Service
	accounts *bankaccount.Service
	syncer   *banktx.Service
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a Handler.
func New(banks *bank.Service, accounts *bankaccount.Service, syncer *banktx.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{banks: banks, accounts: accounts, syncer: syncer, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("GET /api/banks", h.getBanks)
	h.mux.HandleFunc("POST /api/bank", h.createBank)
	h.mux.HandleFunc("POST /api/bank/{name}/submit", h.submitBank)
	h.mux.HandleFunc("POST /api/bank/{name}/cancel", h.cancelBank)
	h.mux.HandleFunc("DELETE /api/bank/{name}", h.deleteBank)
	h.mux.HandleFunc("POST /api/bank/auth", h.bankAuth)
	h.mux.HandleFunc("POST /api/bank/auth/save", h.saveBankAuth)
	h.mux.HandleFunc("POST /api/bank/account/store", h.storeBankAccount)
	h.mux.HandleFunc("POST /api/bank/account/change", h.changeBankAccount)
	h.mux.HandleFunc("GET /api/bank-accounts", h.listBankAccounts)
	h.mux.HandleFunc("POST /api/bank-account/data", h.bankAccountData)
	h.mux.HandleFunc("POST /api/sync", h.sync)
	h.mux.HandleFunc("GET /callback/{name}", h.callback)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start).Round(time.Microsecond))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, Result{Info: "ok"})
}

func (h *Handler) write(w http.ResponseWriter, status int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.logger.Warn("writing response", "err", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, data any) {
	h.write(w, http.StatusOK, Result{Data: data})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.write(w, http.StatusBadRequest, Result{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// fail maps err to a status and writes it.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	res := Result{Error: err.Error()}

	var apiErr *gocardless.APIError
	switch {
	case errors.Is(err, access.ErrDisabled):
		status = http.StatusServiceUnavailable
		res = Result{Error: err.Error(), Disabled: true}
	case errors.Is(err, banktx.ErrInProgress), errors.Is(err, banktx.ErrSyncLimit):
		status = http.StatusConflict
		res = Result{Info: err.Error()}
	case errors.Is(err, bank.ErrInvalidArgs),
		errors.Is(err, bankaccount.ErrInvalidArgs),
		errors.Is(err, banktx.ErrInvalidArgs),
		errors.Is(err, bank.ErrAuthMismatch),
		errors.Is(err, bank.ErrUnsupportedBank),
		errors.Is(err, bank.ErrNoCountry):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, banktx.ErrUnknownAccount),
		errors.Is(err, bankaccount.ErrUnknownAccount),
		errors.Is(err, bank.ErrUnknownReference):
		status = http.StatusNotFound
	case errors.Is(err, bank.ErrNotSubmitted),
		errors.Is(err, bank.ErrSubmitted),
		errors.Is(err, bank.ErrCancelled),
		errors.Is(err, banktx.ErrNotLinked),
		errors.Is(err, banktx.ErrNotAuthorized):
		status = http.StatusConflict
	case errors.Is(err, access.ErrNoCredentials), errors.Is(err, access.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("request failed", "err", err)
	}
	h.write(w, status, res)
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, v)
}
