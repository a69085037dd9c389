package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Bank Account Data API root.
const DefaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2/"

// ErrNoAccessToken is returned when an authenticated call is made before a token is set.
var ErrNoAccessToken = errors.New("gocardless access token is missing")

// Client calls the Bank Account Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetAccessToken sets the bearer token used by authenticated calls.
func (c *Client) SetAccessToken(token string) {
	c.token = token
}

// AccessToken returns the bearer token currently in use.
func (c *Client) AccessToken() string {
	return c.token
}

// NewToken exchanges a secret pair for access and refresh tokens.
func (c *Client) NewToken(ctx context.Context, secretID, secretKey string) (*Token, error) {
	if secretID == "" || secretKey == "" {
		return nil, errors.New("gocardless secret id or key is invalid")
	}
	var tok Token
	body := map[string]string{"secret_id": secretID, "secret_key": secretKey}
	if err := c.do(ctx, http.MethodPost, "token/new/", body, false, &tok); err != nil {
		return nil, fmt.Errorf("requesting new token: %w", err)
	}
	if tok.Access == "" || tok.AccessExpires <= 0 || tok.Refresh == "" || tok.RefreshExpires <= 0 {
		return nil, errors.New("gocardless access token received is invalid")
	}
	return &tok, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (*Token, error) {
	var tok Token
	if err := c.do(ctx, http.MethodPost, "token/refresh/", map[string]string{"refresh": refresh}, false, &tok); err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	if tok.Access == "" || tok.AccessExpires <= 0 {
		return nil, errors.New("gocardless refreshed access token is invalid")
	}
	return &tok, nil
}

// ListInstitutions returns the institutions available in country (ISO 3166 alpha-2).
func (c *Client) ListInstitutions(ctx context.Context, country string) ([]Institution, error) {
	uri := "institutions/"
	if country != "" {
		uri += "?" + url.Values{"country": {strings.ToLower(country)}}.Encode()
	}
	var list []Institution
	if err := c.do(ctx, http.MethodGet, uri, nil, true, &list); err != nil {
		return nil, fmt.Errorf("listing institutions: %w", err)
	}
	return list, nil
}

// CreateAgreement creates an end user agreement for an institution.
func (c *Client) CreateAgreement(ctx context.Context, institutionID string, maxHistoricalDays int) (*Agreement, error) {
	if maxHistoricalDays <= 0 {
		maxHistoricalDays = DefaultHistoricalDays
	}
	body := map[string]any{
		"institution_id":        institutionID,
		"max_historical_days":   maxHistoricalDays,
		"access_valid_for_days": DefaultAccessValidForDays,
		"access_scope":          []string{"balances", "details", "transactions"},
	}
	var ag Agreement
	if err := c.do(ctx, http.MethodPost, "agreements/enduser/", body, true, &ag); err != nil {
		return nil, fmt.Errorf("creating agreement: %w", err)
	}
	if ag.AccessValidForDays <= 0 {
		c.logger.Info("agreement received without access validity", "institution", institutionID)
		ag.AccessValidForDays = DefaultAccessValidForDays
	}
	return &ag, nil
}

// LinkParams holds the parameters for linking an institution.
type LinkParams struct {
	InstitutionID     string
	Reference         string
	Redirect          string
	UserLanguage      string
	MaxHistoricalDays int
}

// CreateLink creates an agreement and a requisition for it, returning the requisition
// with the agreement's access validity.
func (c *Client) CreateLink(ctx context.Context, p LinkParams) (*Requisition, error) {
	ag, err := c.CreateAgreement(ctx, p.InstitutionID, p.MaxHistoricalDays)
	if err != nil {
		return nil, err
	}
	lang := p.UserLanguage
	if lang == "" {
		lang = "en"
	}
	body := map[string]string{
		"institution_id": p.InstitutionID,
		"redirect":       p.Redirect,
		"reference":      p.Reference,
		"agreement":      ag.ID,
		"user_language":  strings.ToUpper(lang),
	}
	var req Requisition
	if err := c.do(ctx, http.MethodPost, "requisitions/", body, true, &req); err != nil {
		return nil, fmt.Errorf("creating requisition: %w", err)
	}
	req.AccessValidForDays = ag.AccessValidForDays
	return &req, nil
}

// GetRequisition returns a requisition with its linked account IDs.
func (c *Client) GetRequisition(ctx context.Context, id string) (*Requisition, error) {
	var req Requisition
	if err := c.do(ctx, http.MethodGet, "requisitions/"+url.PathEscape(id)+"/", nil, true, &req); err != nil {
		return nil, fmt.Errorf("getting requisition %s: %w", id, err)
	}
	return &req, nil
}

// DeleteRequisition removes a requisition and its account access.
func (c *Client) DeleteRequisition(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "requisitions/"+url.PathEscape(id)+"/", nil, true, nil); err != nil {
		return fmt.Errorf("deleting requisition %s: %w", id, err)
	}
	return nil
}

// GetAccount returns account metadata with its status normalized.
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var acc Account
	if err := c.do(ctx, http.MethodGet, "accounts/"+url.PathEscape(id)+"/", nil, true, &acc); err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	acc.Status = NormalizeStatus(acc.RawStatus)
	return &acc, nil
}

// GetBalances returns the balances of an account.
func (c *Client) GetBalances(ctx context.Context, id string) ([]Balance, error) {
	var resp struct {
		Balances []rawBalance `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "accounts/"+url.PathEscape(id)+"/balances/", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("getting balances of %s: %w", id, err)
	}
	if len(resp.Balances) == 0 {
		return nil, fmt.Errorf("balances received for %s are empty", id)
	}
	balances := make([]Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		if b.BalanceAmount.Currency == "" {
			return nil, fmt.Errorf("balances received for %s are invalid", id)
		}
		balances = append(balances, Balance{
			Amount:   b.BalanceAmount.Amount,
			Currency: b.BalanceAmount.Currency,
			Type:     b.BalanceType,
			Key:      BalanceKey(b.BalanceType),
			Date:     b.ReferenceDate,
		})
	}
	return balances, nil
}

// GetDetails returns the account details object.
func (c *Client) GetDetails(ctx context.Context, id string) (*AccountDetails, error) {
	var resp struct {
		Account *AccountDetails `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, "accounts/"+url.PathEscape(id)+"/details/", nil, true, &resp); err != nil {
		return nil, fmt.Errorf("getting details of %s: %w", id, err)
	}
	if resp.Account == nil {
		return nil, fmt.Errorf("details received for %s have no data", id)
	}
	return resp.Account, nil
}

// GetTransactions returns the booked and pending transactions between from and to (inclusive).
func (c *Client) GetTransactions(ctx context.Context, id string, from, to time.Time) (*Transactions, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("date_from", from.Format(time.DateOnly))
	}
	if !to.IsZero() {
		q.Set("date_to", to.Format(time.DateOnly))
	}
	uri := "accounts/" + url.PathEscape(id) + "/transactions/"
	if len(q) > 0 {
		uri += "?" + q.Encode()
	}
	var resp struct {
		Transactions Transactions `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, uri, nil, true, &resp); err != nil {
		return nil, fmt.Errorf("getting transactions of %s: %w", id, err)
	}
	return &resp.Transactions, nil
}

func (c *Client) do(ctx context.Context, method, uri string, body any, auth bool, out any) error {
	if auth && c.token == "" {
		return ErrNoAccessToken
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+uri, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gocardless request failed", "method", method, "uri", uri, "err", err)
		return fmt.Errorf("%s %s: %w", method, uri, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := ParseError(resp.StatusCode, data)
		c.logger.Error("gocardless request rejected",
			"method", method, "uri", uri, "status", resp.StatusCode, "err", apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", uri, err)
	}
	return nil
}
