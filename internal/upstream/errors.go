// Package upstream holds what every provider adapter shares: the typed error
// returned on any non-success response and rate-limit parsing.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept on the error.
const maxErrorBody = 64 << 10

// APIError is a non-success response from an external provider.
// Body keeps the raw payload for the execution log.
type APIError struct {
	Provider   string
	StatusCode int
	Title      string
	Detail     string
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
}

// IsRateLimited reports whether the provider rejected the call for rate limiting.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether err wraps a provider rate-limit response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimited()
}

// RetryAfter returns the backoff a rate-limited provider asked for, or 0.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// errorBody is the union of error shapes the adapters understand: X problem
// documents and v1 errors arrays, Telegram's description, JSON-RPC-like message.
type errorBody struct {
	Title       string `json:"title"`
	Detail      string `json:"detail"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Errors      []struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	} `json:"errors"`
}

// NewAPIError reads resp.Body (bounded) and builds the typed error for it.
// The caller still owns closing the body.
func NewAPIError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return ErrorFromBody(provider, resp.StatusCode, resp.Header, body)
}

// ErrorFromBody builds an APIError from an already-read payload.
func ErrorFromBody(provider string, status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   provider,
		StatusCode: status,
		Body:       string(body),
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Title = parsed.Title
		apiErr.Detail = firstNonEmpty(parsed.Detail, parsed.Description, parsed.Message)
		if apiErr.Detail == "" && len(parsed.Errors) > 0 {
			first := parsed.Errors[0]
			apiErr.Detail = firstNonEmpty(first.Detail, first.Message)
			if apiErr.Title == "" {
				apiErr.Title = first.Title
			}
		}
	}

	if status == http.StatusTooManyRequests {
		apiErr.RetryAfter = ParseRetryDelay(header, body, time.Now())
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
