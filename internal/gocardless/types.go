package gocardless

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/gcsync/internal/model"
)

const (
	// DefaultHistoricalDays is the transaction history requested when none is given.
	DefaultHistoricalDays = 90
	// DefaultAccessValidForDays is the requested agreement validity.
	DefaultAccessValidForDays = 180
)

// Token is a token pair; expiries are seconds from issue.
type Token struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int    `json:"refresh_expires"`
}

// Institution is a bank supported by the API.
type Institution struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	BIC                  string   `json:"bic"`
	TransactionTotalDays FlexInt  `json:"transaction_total_days"`
	Countries            []string `json:"countries"`
	Logo                 string   `json:"logo"`
}

// FlexInt decodes integers sent either as JSON numbers or numeric strings.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// Agreement is an end user agreement.
type Agreement struct {
	ID                 string   `json:"id"`
	Created            string   `json:"created"`
	InstitutionID      string   `json:"institution_id"`
	MaxHistoricalDays  int      `json:"max_historical_days"`
	AccessValidForDays int      `json:"access_valid_for_days"`
	AccessScope        []string `json:"access_scope"`
	Accepted           string   `json:"accepted"`
}

// Requisition links an institution's accounts to the caller.
type Requisition struct {
	ID            string   `json:"id"`
	Created       string   `json:"created"`
	Redirect      string   `json:"redirect"`
	Status        string   `json:"status"`
	InstitutionID string   `json:"institution_id"`
	Agreement     string   `json:"agreement"`
	Reference     string   `json:"reference"`
	Accounts      []string `json:"accounts"`
	UserLanguage  string   `json:"user_language"`
	Link          string   `json:"link"`

	// AccessValidForDays is copied from the agreement when the link is created.
	AccessValidForDays int `json:"access_valid_for_days,omitempty"`
}

// Account is account metadata.
type Account struct {
	ID            string          `json:"id"`
	Created       string          `json:"created"`
	LastAccessed  string          `json:"last_accessed"`
	IBAN          string          `json:"iban"`
	InstitutionID string          `json:"institution_id"`
	OwnerName     string          `json:"owner_name"`
	RawStatus     json.RawMessage `json:"status"`

	Status model.AccountStatus `json:"-"`
}

// AccountDetails is the details object of an account.
type AccountDetails struct {
	ResourceID      string `json:"resourceId"`
	IBAN            string `json:"iban"`
	BBAN            string `json:"bban"`
	Currency        string `json:"currency"`
	OwnerName       string `json:"ownerName"`
	Name            string `json:"name"`
	DisplayName     string `json:"displayName"`
	Product         string `json:"product"`
	CashAccountType string `json:"cashAccountType"`
	Status          string `json:"status"`
	BIC             string `json:"bic"`
	Usage           string `json:"usage"`
}

type rawBalance struct {
	BalanceAmount struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"balanceAmount"`
	BalanceType   string `json:"balanceType"`
	ReferenceDate string `json:"referenceDate"`
}

// Balance is one balance of an account.
type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Type     string          `json:"type"`
	Key      string          `json:"key,omitempty"`
	Date     string          `json:"date"`
}

var balanceKeys = map[string]string{
	"openingAvailable":       "opening",
	"openingBooked":          "opening_booked",
	"closingAvailable":       "closing",
	"closingBooked":          "closing_booked",
	"forwardAvailable":       "forward",
	"interimAvailable":       "temp_balance",
	"interimBooked":          "temp_booked",
	"expected":               "day_balance",
	"information":            "info_balance",
	"nonInvoiced":            "uninvoiced",
	"previouslyClosedBooked": "prev_closing_booked",
}

// BalanceKey maps an API balance type to its short key, or "" when unknown.
func BalanceKey(balanceType string) string {
	return balanceKeys[balanceType]
}

// Transactions holds the raw booked and pending transaction objects.
type Transactions struct {
	Booked  []map[string]any `json:"booked"`
	Pending []map[string]any `json:"pending"`
}

var (
	accountStatuses    = []string{"DISCOVERED", "PROCESSING", "ERROR", "EXPIRED", "READY", "SUSPENDED"}
	accountStatusesNew = []string{"enabled", "deleted", "blocked"}
)

// NormalizeStatus title-cases a known account status. The status may be a
// string or an object keyed by status; anything unrecognized is Ready.
func NormalizeStatus(raw json.RawMessage) model.AccountStatus {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if st, ok := knownStatus(s); ok {
			return st
		}
		return model.AccountReady
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range accountStatuses {
			if _, ok := obj[k]; ok {
				return titleStatus(k)
			}
		}
		for k := range obj {
			if st, ok := knownStatus(k); ok {
				return st
			}
		}
	}
	return model.AccountReady
}

func knownStatus(s string) (model.AccountStatus, bool) {
	for _, k := range accountStatuses {
		if s == k {
			return titleStatus(s), true
		}
	}
	for _, k := range accountStatusesNew {
		if strings.ToLower(s) == k {
			return titleStatus(s), true
		}
	}
	return "", false
}

func titleStatus(s string) model.AccountStatus {
	if s == "" {
		return ""
	}
	return model.AccountStatus(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
}
