// Package backend normalizes failures from remote verification services.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the backend took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the backend returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the backend is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the requested record doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorCircuitOpen indicates the call was short-circuited locally
	ErrorCircuitOpen ErrorCategory = "circuit_open"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps backend failures with normalized categorization
type Error struct {
	Category   ErrorCategory
	Backend    string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("backend %s [%s]: %s: %v", e.Backend, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("backend %s [%s]: %s", e.Backend, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a normalized backend error. Timeouts, outages, rate limits, and
// open circuits are retryable.
func New(category ErrorCategory, backendName, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited ||
		category == ErrorCircuitOpen

	return &Error{
		Category:   category,
		Backend:    backendName,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// CategoryOf returns the category of a backend error, or ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var be *Error
	if errors.As(err, &be) {
		return be.Category
	}
	return ErrorInternal
}

// FromStatus classifies a non-2xx HTTP status.
func FromStatus(backendName string, status int) *Error {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusNotFound:
		return New(ErrorNotFound, backendName, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(ErrorAuthentication, backendName, msg, nil)
	case status == http.StatusTooManyRequests:
		return New(ErrorRateLimited, backendName, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return New(ErrorTimeout, backendName, msg, nil)
	case status >= 500:
		return New(ErrorOutage, backendName, msg, nil)
	default:
		return New(ErrorBadData, backendName, msg, nil)
	}
}

// FromTransport classifies an error returned by an HTTP round trip.
func FromTransport(backendName string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrorTimeout, backendName, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return New(ErrorTimeout, backendName, "request timed out", err)
	default:
		return New(ErrorOutage, backendName, "request failed", err)
	}
}
