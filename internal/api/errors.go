package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is matched by any error caused by a missing, expired, or
// rejected access token.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx backend response.
type Error struct {
	Resource   string
	Message    string
	Body       string
	StatusCode int
}

// Error returns the backend message verbatim, or a compact technical form
// when the body carried none.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	body := e.Body
	if body == "" {
		body = "error"
	}
	return fmt.Sprintf("%s %d: %s", e.Resource, e.StatusCode, body)
}

// Is lets a 401 match ErrUnauthorized.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// RateLimitError is a 429 response that carried a message.
type RateLimitError struct {
	RetryAfter *time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// errorBody is the JSON shape of backend error responses.
type errorBody struct {
	RetryAfterSeconds *float64 `json:"retryAfterSeconds"`
	Message           string   `json:"message"`
}

// maxErrorBody caps how much of an error body is read.
const maxErrorBody = 64 << 10

// decodeError turns a non-2xx response into a typed error.
func decodeError(resource string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	text := strings.TrimSpace(string(raw))

	var parsed errorBody
	if text != "" {
		// Bodies that are not JSON fall through to the technical form.
		_ = json.Unmarshal(raw, &parsed)
	}

	if resp.StatusCode == http.StatusTooManyRequests && parsed.Message != "" {
		rl := &RateLimitError{Message: parsed.Message}
		if secs := parsed.RetryAfterSeconds; secs != nil && *secs > 0 && !math.IsInf(*secs, 0) {
			d := time.Duration(*secs * float64(time.Second))
			rl.RetryAfter = &d
		}
		return rl
	}

	return &Error{
		Resource:   resource,
		StatusCode: resp.StatusCode,
		Message:    parsed.Message,
		Body:       text,
	}
}
