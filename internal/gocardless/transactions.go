package gocardless

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Transaction is a raw API transaction reshaped into ledger fields.
type Transaction struct {
	TransactionID   string
	ReferenceNumber string
	ProprietaryCode string
	Date            string
	Description     string
	Amount          string
	Currency        string
	Information     string
	Supplier        Party
	Customer        Party
}

// Party is the counterparty side (creditor or debtor) of a transaction.
type Party struct {
	Name      string `json:"name,omitempty"`
	ID        string `json:"id,omitempty"`
	Ultimate  string `json:"ultimate,omitempty"`
	Account   string `json:"account,omitempty"`
	IBAN      string `json:"iban,omitempty"`
	AccountNo string `json:"account_no,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// Empty reports whether no counterparty name was sent.
func (p Party) Empty() bool { return p.Name == "" }

type payload struct {
	TransactionID   string `json:"transaction_id,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	ProprietaryCode string `json:"proprietary_code,omitempty"`
	Date            string `json:"date,omitempty"`
	Description     string `json:"description,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Information     string `json:"information,omitempty"`
	Supplier        *Party `json:"supplier,omitempty"`
	Customer        *Party `json:"customer,omitempty"`
}

// Payload returns the compact JSON of the prepared fields. Empty fields and
// parties are left out.
func (t Transaction) Payload() []byte {
	p := payload{
		TransactionID:   t.TransactionID,
		ReferenceNumber: t.ReferenceNumber,
		ProprietaryCode: t.ProprietaryCode,
		Date:            t.Date,
		Description:     t.Description,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Information:     t.Information,
	}
	if t.Supplier != (Party{}) {
		p.Supplier = &t.Supplier
	}
	if t.Customer != (Party{}) {
		p.Customer = &t.Customer
	}
	data, err := json.Marshal(p)
	if err != nil {
		return []byte(fmt.Sprint(p))
	}
	return data
}

var (
	dateKeys = []string{"bookingDate", "bookingDateTime", "valueDate", "valueDateTime"}

	dateLabels = map[string]string{
		"bookingDate":     "Booking Date",
		"bookingDateTime": "Booking DateTime",
		"valueDate":       "Value Date",
		"valueDateTime":   "Value DateTime",
	}

	descriptionKeys = []string{
		"remittanceInformationStructured",
		"remittanceInformationStructuredArray",
		"remittanceInformationUnstructured",
		"remittanceInformationUnstructuredArray",
	}

	informationKeys = []string{
		"endToEndId",
		"mandateId",
		"checkId",
		"internalTransactionId",
		"entryReference",
		"proprietaryBankTransactionCode",
		"purposeCode",
		"currencyExchange",
		"additionalInformation",
	}

	informationLabels = map[string]string{
		"endToEndId":                             "End To End ID",
		"mandateId":                              "Mandate ID",
		"checkId":                                "Check ID",
		"internalTransactionId":                  "Internal Transaction ID",
		"entryReference":                         "Entry Reference",
		"proprietaryBankTransactionCode":         "Proprietary Bank Transaction Code",
		"purposeCode":                            "Purpose Code",
		"currencyExchange":                       "Currency Exchange",
		"additionalInformation":                  "Additional Info",
		"remittanceInformationStructured":        "Remittance Info",
		"remittanceInformationStructuredArray":   "Remittance Info Array",
		"remittanceInformationUnstructured":      "Unstructured Remittance Info",
		"remittanceInformationUnstructuredArray": "Unstructured Remittance Info Array",
	}

	exchangeLabels = map[string]string{
		"sourceCurrency":         "From",
		"exchangeRate":           "Rate",
		"unitCurrency":           "Unit",
		"targetCurrency":         "To",
		"quotationDate":          "Date",
		"contractIdentification": "Ref. ID",
	}
)

// PrepareTransactions reshapes raw transactions into ledger fields.
func PrepareTransactions(raw []map[string]any) []Transaction {
	out := make([]Transaction, 0, len(raw))
	for _, entry := range raw {
		out = append(out, PrepareTransaction(entry))
	}
	return out
}

// PrepareTransaction reshapes one raw transaction.
func PrepareTransaction(entry map[string]any) Transaction {
	t := Transaction{
		TransactionID:   stringValue(entry["transactionId"]),
		ReferenceNumber: stringValue(entry["bankTransactionCode"]),
		ProprietaryCode: stringValue(entry["proprietaryBankTransactionCode"]),
	}
	info := map[string]any{}

	for _, k := range dateKeys {
		v := stringValue(entry[k])
		if v == "" {
			continue
		}
		if t.Date == "" {
			t.Date = v
		}
		info[dateLabels[k]] = v
	}

	for _, k := range descriptionKeys {
		v, ok := entry[k]
		if !ok || !present(v) {
			continue
		}
		text := stringValue(v)
		if list, ok := v.([]any); ok && len(list) > 0 {
			text = stringValue(list[0])
		}
		if t.Description == "" && text != "" {
			t.Description = text
			continue
		}
		info[informationLabels[k]] = v
	}

	if amount, ok := entry["transactionAmount"].(map[string]any); ok {
		t.Amount = stringValue(amount["amount"])
		t.Currency = stringValue(amount["currency"])
	}

	for _, k := range informationKeys {
		v, ok := entry[k]
		if !ok || !present(v) {
			continue
		}
		if k == "currencyExchange" {
			v = relabelExchange(v)
		}
		info[informationLabels[k]] = v
	}

	t.Supplier = Party{
		ID:       stringValue(entry["creditorId"]),
		Name:     stringValue(entry["creditorName"]),
		Ultimate: stringValue(entry["ultimateCreditor"]),
	}
	setPartyAccount(&t.Supplier, entry["creditorAccount"])

	t.Customer = Party{
		ID:       stringValue(entry["debtorId"]),
		Name:     stringValue(entry["debtorName"]),
		Ultimate: stringValue(entry["ultimateDebtor"]),
	}
	setPartyAccount(&t.Customer, entry["debtorAccount"])

	if len(info) > 0 {
		if data, err := json.MarshalIndent(info, "", "  "); err == nil {
			t.Information = string(data)
		}
	}
	return t
}

func setPartyAccount(p *Party, v any) {
	acc, ok := v.(map[string]any)
	if !ok {
		p.Account = stringValue(v)
		return
	}
	p.IBAN = stringValue(acc["iban"])
	p.Account = stringValue(acc["bban"])
	p.AccountNo = stringValue(acc["pan"])
	if p.AccountNo == "" {
		p.AccountNo = stringValue(acc["maskedPan"])
	}
	p.Currency = stringValue(acc["currency"])
	if p.Account == "" {
		p.Account = p.IBAN
	}
}

func relabelExchange(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			label, ok := exchangeLabels[k]
			if ok && present(val) {
				out[label] = val
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, relabelExchange(item))
		}
		return out
	default:
		return v
	}
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any, map[string]any:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
