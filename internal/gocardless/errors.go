package gocardless

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a rejected API response.
type APIError struct {
	StatusCode int
	Title      string
	Message    string
	List       []*APIError
}

func (e *APIError) Error() string {
	if len(e.List) > 0 {
		parts := make([]string, len(e.List))
		for i, sub := range e.List {
			parts[i] = sub.Error()
		}
		return strings.Join(parts, "; ")
	}
	return e.Title + ": " + e.Message
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var (
	errorListKeys = []string{"access_scope", "agreement", "redirect"}
	errorMainKeys = []string{"institution_id", "redirect"}
	errorFields   = []string{
		"institution_id",
		"max_historical_days",
		"access_valid_for_days",
		"agreement",
		"user_language",
		"reference",
		"ssn",
		"account_selection",
	}
)

const (
	defaultErrorTitle   = "Response Error"
	defaultErrorMessage = "The response received is invalid."
)

// ParseError builds an APIError from an error response body.
func ParseError(status int, body []byte) *APIError {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return &APIError{StatusCode: status, Title: defaultErrorTitle, Message: defaultErrorMessage}
	}
	e := parseErrorValue(data)
	setStatus(e, status)
	return e
}

func setStatus(e *APIError, status int) {
	e.StatusCode = status
	for _, sub := range e.List {
		setStatus(sub, status)
	}
}

func parseErrorValue(v any) *APIError {
	e := &APIError{Title: defaultErrorTitle, Message: defaultErrorMessage}
	data, ok := v.(map[string]any)
	if !ok {
		return e
	}

	for _, k := range errorListKeys {
		list, ok := data[k].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if _, ok := list[0].(map[string]any); !ok {
			continue
		}
		for _, item := range list {
			e.List = append(e.List, parseErrorValue(item))
		}
		return e
	}

	parsed := false
	for _, k := range errorMainKeys {
		if _, ok := data[k].([]any); ok {
			raw, _ := json.Marshal(data)
			data = map[string]any{"detail": string(raw)}
			parsed = true
			break
		}
	}
	if !parsed {
		for _, k := range errorFields {
			if sub, ok := data[k].(map[string]any); ok {
				data = sub
				break
			}
		}
	}

	if summary, ok := data["summary"].(string); ok {
		e.Title = summary
		if typ, ok := data["type"].(string); ok && typ != "" {
			e.Title = typ + " - " + summary
		}
	} else if _, hasID := data["id"]; hasID {
		if _, hasStatus := data["status"]; hasStatus {
			e.Title = "Account state error"
			e.Message = "Account state does not support this operation."
		}
	}

	if detail, ok := data["detail"]; ok {
		e.Message = fmt.Sprint(detail)
	} else if country, ok := data["country"].([]any); ok && len(country) > 0 {
		e.Message = fmt.Sprint(country[0])
	}
	return e
}
