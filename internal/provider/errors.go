package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 * 1024

// AuthenticationError is returned for HTTP 401 and 403
type AuthenticationError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError is returned for HTTP 429. RetryAfter is zero when the
// provider did not send a Retry-After header.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s: %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
}

// ProviderUnavailableError covers network failures and 5xx responses.
// StatusCode is zero for network failures.
type ProviderUnavailableError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderUnavailableError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: service unavailable (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: service unavailable: %s", e.Provider, e.Message)
	}
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a success response does not match
// the vendor schema or carries no text.
type MalformedResponseError struct {
	Provider string
	Message  string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Message)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// RequestError is any other 4xx: the provider rejected the request itself
// (unknown model, bad parameters).
type RequestError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request rejected (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// errorFromResponse classifies a non-2xx response. The body is read (up to
// maxErrorBody) to extract the vendor's message; the caller closes it.
func errorFromResponse(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := vendorErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthenticationError{Provider: provider, StatusCode: code, Message: msg}
	case code == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, Message: msg, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case code >= 500:
		return &ProviderUnavailableError{Provider: provider, StatusCode: code, Message: msg}
	default:
		return &RequestError{Provider: provider, StatusCode: code, Message: msg}
	}
}

// vendorErrorMessage pulls the human-readable message out of the error
// bodies the four vendors send:
//
//	OpenAI/Zhipu: {"error": {"message": "...", "code": "..."}}
//	Anthropic:    {"type": "error", "error": {"type": "...", "message": "..."}}
//	Gemini:       {"error": {"code": 400, "message": "...", "status": "..."}}
//	Gemini array: [{"error": {...}}]
func vendorErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	type envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	var env envelope
	if strings.HasPrefix(trimmed, "[") {
		var arr []envelope
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil && len(arr) > 0 {
			env = arr[0]
		}
	} else {
		_ = json.Unmarshal([]byte(trimmed), &env)
	}

	if len(env.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return s
		}
	}
	if env.Message != "" {
		return env.Message
	}

	return truncate(trimmed, 200)
}

// streamError returns the typed error for an error object sent inside a
// 200 stream ({"error": {...}} from OpenAI, Zhipu and Gemini), or nil when
// data is not one.
func streamError(provider string, data []byte) error {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return nil
	}

	var detail struct {
		Code    json.RawMessage `json:"code"`
		Type    string          `json:"type"`
		Status  string          `json:"status"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &detail); err != nil {
		var s string
		if err := json.Unmarshal(env.Error, &s); err != nil {
			return nil
		}
		detail.Message = s
	}
	msg := detail.Message
	if msg == "" {
		msg = "error in stream"
	}

	// Gemini sends an HTTP status as a number, OpenAI a string code
	var status int
	var code string
	if err := json.Unmarshal(detail.Code, &status); err != nil {
		_ = json.Unmarshal(detail.Code, &code)
	}
	kind := strings.ToLower(detail.Type + " " + detail.Status + " " + code)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(kind, "api_key") || strings.Contains(kind, "authentication") ||
		strings.Contains(kind, "permission_denied") || strings.Contains(kind, "unauthenticated"):
		if status == 0 {
			status = http.StatusUnauthorized
		}
		return &AuthenticationError{Provider: provider, StatusCode: status, Message: msg}
	case status == http.StatusTooManyRequests || strings.Contains(kind, "rate_limit") ||
		strings.Contains(kind, "resource_exhausted") || strings.Contains(kind, "quota"):
		return &RateLimitError{Provider: provider, Message: msg}
	case status >= 400 && status < 500 || strings.Contains(kind, "invalid_request") ||
		strings.Contains(kind, "invalid_argument"):
		if status == 0 {
			status = http.StatusBadRequest
		}
		return &RequestError{Provider: provider, StatusCode: status, Message: msg}
	default:
		return &ProviderUnavailableError{Provider: provider, StatusCode: status, Message: msg}
	}
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
