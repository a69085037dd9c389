package httpapi

import (
	"fmt"
	"net/http"

	"github.com/cleared-dev/gcsync/internal/bank"
	"github.com/cleared-dev/gcsync/internal/model"
)

func (h *Handler) getBanks(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		h.fail(w, bank.ErrInvalidArgs)
		return
	}
	list, err := h.banks.GetBanks(r.Context(), company)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, list)
}

type createBankRequest struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Bank     string `json:"bank"`
	AutoSync bool   `json:"auto_sync"`
}

func (h *Handler) createBank(w http.ResponseWriter, r *http.Request) {
	var req createBankRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.banks.CreateBank(r.Context(), model.Bank{Name: req.Name, Company: req.Company, BankName: req.Bank, AutoSync: req.AutoSync})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusCreated, Result{Data: b})
}

func (h *Handler) submitBank(w http.ResponseWriter, r *http.Request) {
	if err := h.banks.SubmitBank(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, Result{Info: "bank submitted"})
}

func (h *Handler) cancelBank(w http.ResponseWriter, r *http.Request) {
	if err := h.banks.CancelBank(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, Result{Info: "bank cancelled"})
}

func (h *Handler) deleteBank(w http.ResponseWriter, r *http.Request) {
	if err := h.banks.DeleteBank(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, Result{Info: "bank deleted"})
}

func (h *Handler) bankAuth(w http.ResponseWriter, r *http.Request) {
	var req bank.AuthRequest
	if !h.decode(w, r, &req) {
		return
	}
	link, err := h.banks.GetBankAuth(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, link)
}

type saveAuthRequest struct {
	Name       string `json:"name"`
	Bank       string `json:"bank"`
	BankID     string `json:"bank_id"`
	AuthID     string `json:"auth_id"`
	AuthExpiry string `json:"auth_expiry"`
}

func (h *Handler) saveBankAuth(w http.ResponseWriter, r *http.Request) {
	var req saveAuthRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, err := parseDay(req.AuthExpiry)
	if err != nil {
		h.fail(w, fmt.Errorf("%w: auth_expiry: %v", bank.ErrInvalidArgs, err))
		return
	}
	if err := h.banks.SaveBankAuth(r.Context(), req.Name, req.Bank, req.BankID, req.AuthID, expiry); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, Result{Info: "bank authorized"})
}

type accountRequest struct {
	Name        string `json:"name"`
	Account     string `json:"account"`
	BankAccount string `json:"bank_account,omitempty"`
}

func (h *Handler) storeBankAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	name, err := h.accounts.StoreBankAccount(r.Context(), req.Name, req.Account)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, map[string]string{"bank_account": name})
}

func (h *Handler) changeBankAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.accounts.ChangeBankAccount(r.Context(), req.Name, req.Account, req.BankAccount); err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, map[string]string{"bank_account": req.BankAccount})
}

func (h *Handler) listBankAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListBankAccounts(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, list)
}

type accountDataRequest struct {
	BankAccount string `json:"bank_account"`
}

func (h *Handler) bankAccountData(w http.ResponseWriter, r *http.Request) {
	var req accountDataRequest
	if !h.decode(w, r, &req) {
		return
	}
	data, err := h.accounts.GetBankAccountData(r.Context(), req.BankAccount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, data)
}

type syncRequest struct {
	Bank    string `json:"bank"`
	Account string `json:"account"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, err := parseDay(req.From)
	if err != nil {
		h.write(w, http.StatusBadRequest, Result{Error: "invalid from date: " + err.Error()})
		return
	}
	to, err := parseDay(req.To)
	if err != nil {
		h.write(w, http.StatusBadRequest, Result{Error: "invalid to date: " + err.Error()})
		return
	}
	res, err := h.syncer.EnqueueSync(r.Context(), req.Bank, req.Account, from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	info := fmt.Sprintf("sync of %s queued over %d windows", req.Account, len(res.Windows))
	if res.Dropped > 0 {
		info += fmt.Sprintf(", %d left out by the daily sync limit", res.Dropped)
	}
	h.write(w, http.StatusAccepted, Result{Info: info, Data: res})
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		h.write(w, http.StatusBadRequest, Result{Error: "missing ref"})
		return
	}
	if err := h.banks.CompleteAuth(r.Context(), name, ref); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, Result{Info: fmt.Sprintf("bank %s authorized", name)})
}
