package providers

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies an adapter failure into the small closed set the
// proxy understands.
type ErrorKind string

const (
	// KindBadRequest: the vendor rejected the request as malformed.
	// Attributable to the caller's input; not retryable.
	KindBadRequest ErrorKind = "bad_request"

	// KindAuthFailed: the API key was rejected. Not retryable without
	// operator intervention.
	KindAuthFailed ErrorKind = "auth_failed"

	// KindRateLimited: the vendor itself throttled us. Retryable with
	// backoff.
	KindRateLimited ErrorKind = "rate_limited"

	// KindUnavailable: vendor-side 5xx or transport failure. Retryable.
	KindUnavailable ErrorKind = "unavailable"

	// KindTimeout: the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
)

// Error is the normalized adapter failure. Status is the upstream HTTP
// status when one was received, 0 otherwise.
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Retryable reports whether the caller may reasonably retry with backoff.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// kindForStatus maps an upstream HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailed
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}
