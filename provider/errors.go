package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedFrame marks a single frame that could not be decoded. It is
// never fatal to a stream.
var ErrMalformedFrame = errors.New("malformed frame")

func malformed(kind Kind, payload []byte, reason string) error {
	return fmt.Errorf("%s: %w: %s: %q", kind, ErrMalformedFrame, reason, truncate(string(payload), 120))
}

// APIError is a failure reported by the vendor inside an otherwise healthy
// stream (for example an "error" event after the 200 response).
type APIError struct {
	Provider Kind
	Type     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s API error [%s]: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// TransportError is a non-success HTTP status or a connection failure.
type TransportError struct {
	Provider   Kind
	StatusCode int    // 0 for connection failures
	Status     string // e.g. "401 Unauthorized"
	Body       string // vendor error detail, truncated
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s API error: %s: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

const maxErrorBody = 512

// newStatusError builds a TransportError from a non-2xx response body. JSON
// bodies are reduced to their error message when one is present.
func newStatusError(kind Kind, resp *http.Response, body []byte) *TransportError {
	detail := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "0.error.message"} {
			if msg := gjson.GetBytes(body, path); msg.Exists() && msg.String() != "" {
				detail = msg.String()
				break
			}
		}
	}
	return &TransportError{
		Provider:   kind,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       truncate(detail, maxErrorBody),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
