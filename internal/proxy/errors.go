package proxy

import (
	"fmt"
	"time"

	"llm_proxy/internal/models"
)

// ConfigurationError means no API key could be resolved for the
// provider, or the provider itself is unknown.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provider %s not configured: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("provider %s not configured", e.Provider)
}

// QuotaExceededError means the workspace is over its monthly spend
// limit.
type QuotaExceededError struct {
	Usage   *models.WorkspaceUsage
	Message string
}

func (e *QuotaExceededError) Error() string {
	return e.Message
}

// RateLimitedError means a request-rate ceiling was hit. RetryAfter is
// the shortest wait across the violated windows.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// UpstreamError wraps a provider-side failure.
type UpstreamError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TimeoutError means the provider did not answer within the dispatch
// timeout.
type TimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %s timed out after %s", e.Provider, e.Elapsed)
}

// InfrastructureError wraps a failure in the proxy's own dependencies
// (database, Redis) rather than the upstream provider.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure in %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
