package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

// Headers and query parameters that carry provider credentials
var (
	sensitiveHeaders = map[string]bool{
		"authorization":  true,
		"x-api-key":      true,
		"api-key":        true,
		"x-goog-api-key": true,
		"cookie":         true,
		"set-cookie":     true,
	}
	sensitiveParams = map[string]bool{
		"key":     true,
		"api_key": true,
		"token":   true,
	}
	// Matched as substrings; "token" alone would catch max_tokens
	sensitiveBodyKeys = []string{"api_key", "apikey", "api-key", "password", "secret", "access_token", "authorization"}
)

// HTTPLogger writes provider requests and responses at debug level
type HTTPLogger struct {
	logger      *Logger
	maxBodySize int
}

func NewHTTPLogger(logger *Logger) *HTTPLogger {
	return &HTTPLogger{logger: logger, maxBodySize: 8 * 1024}
}

// SetMaxBodySize caps how many body bytes are logged
func (h *HTTPLogger) SetMaxBodySize(size int) {
	h.maxBodySize = size
}

func (h *HTTPLogger) LogRequest(req *http.Request, body []byte) {
	fields := Fields{
		"method":  req.Method,
		"url":     RedactURL(req.URL),
		"headers": redactHeaders(req.Header, true),
	}
	if len(body) > 0 {
		fields["body"] = h.bodyField(body, true)
		fields["body_size"] = len(body)
	}
	h.logger.Debug("HTTP request", fields)
}

func (h *HTTPLogger) LogResponse(resp *http.Response, body []byte, duration time.Duration) {
	fields := Fields{
		"status":      resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
		"headers":     redactHeaders(resp.Header, false),
	}
	if len(body) > 0 {
		fields["body"] = h.bodyField(body, false)
		fields["body_size"] = len(body)
	}
	h.logger.Debug("HTTP response", fields)
}

func (h *HTTPLogger) LogError(err error, req *http.Request) {
	h.logger.Error("HTTP request failed", err, Fields{
		"method": req.Method,
		"url":    RedactURL(req.URL),
	})
}

func (h *HTTPLogger) bodyField(body []byte, redact bool) interface{} {
	var parsed interface{}
	if json.Unmarshal(body, &parsed) == nil {
		if redact {
			return redactJSON(parsed)
		}
		return parsed
	}
	if len(body) > h.maxBodySize {
		return string(body[:h.maxBodySize]) + "...[truncated]"
	}
	return string(body)
}

// LoggingRoundTripper logs every request that passes through it
type LoggingRoundTripper struct {
	next    http.RoundTripper
	logger  *HTTPLogger
	logBody bool
}

// NewLoggingRoundTripper wraps next (http.DefaultTransport when nil)
func NewLoggingRoundTripper(next http.RoundTripper, logger *HTTPLogger, logBody bool) *LoggingRoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &LoggingRoundTripper{next: next, logger: logger, logBody: logBody}
}

func (rt *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var reqBody []byte
	if rt.logBody && req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}
	rt.logger.LogRequest(req, reqBody)

	resp, err := rt.next.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		rt.logger.LogError(err, req)
		return nil, err
	}

	// Streamed bodies are consumed by the caller, never buffered here
	if rt.logBody && !isStreaming(req, resp) {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		rt.logger.LogResponse(resp, respBody, elapsed)
	} else {
		rt.logger.LogResponse(resp, nil, elapsed)
	}

	return resp, nil
}

// RedactURL returns u as a string with credential query parameters masked
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	changed := false
	for name := range q {
		if sensitiveParams[strings.ToLower(name)] {
			q.Set(name, redacted)
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	clone := *u
	clone.RawQuery = q.Encode()
	return clone.String()
}

func redactHeaders(h http.Header, redact bool) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		if redact && sensitiveHeaders[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = v[0]
	}
	return out
}

func isStreaming(req *http.Request, resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		return true
	}
	// Gemini streams a JSON array with an application/json content type
	return strings.Contains(req.URL.Path, "streamGenerateContent") ||
		strings.Contains(req.Header.Get("Accept"), "text/event-stream")
}

func redactJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			if isSensitiveKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = redactJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactJSON(item)
		}
		return out
	default:
		return data
	}
}

func isSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, s := range sensitiveBodyKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
