package ratelimit

import (
	"context"
	"time"
)

// Ceilings holds the per-window request ceilings for one call site.
// Different call sites may apply different ceilings to the same
// workspace, so they are supplied per invocation rather than fixed at
// construction. A ceiling of 0 or less means that window is unlimited.
type Ceilings struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Unlimited reports whether no window has a ceiling configured.
func (c Ceilings) Unlimited() bool {
	return c.PerMinute <= 0 && c.PerHour <= 0 && c.PerDay <= 0
}

// Decision is the outcome of a rate-limit check or reservation.
type Decision struct {
	Allowed bool

	// RetryAfter is the shortest wait across the violated windows after
	// which a retry can succeed. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter bounds request throughput per workspace across three fixed
// windows (minute, hour, day), all checked together.
type Limiter interface {
	// Check evaluates the ceilings for the request about to be made
	// without mutating any counter. Expired windows count as zero.
	Check(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error)

	// Reserve atomically rolls over expired windows, checks every
	// ceiling and increments all three counters only when every window
	// allows. Two concurrent reservations can never both consume the
	// last slot: under a ceiling of N, exactly N reservations succeed
	// per window. A plain read-then-write is insufficient here.
	Reserve(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error)

	// Increment unconditionally increments all three windows, applying
	// rollover (new window start, counter = 1) to any expired window.
	Increment(ctx context.Context, workspaceID string) error
}

// NoopLimiter allows all requests (no rate limiting).
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Check(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (l *NoopLimiter) Reserve(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (l *NoopLimiter) Increment(ctx context.Context, workspaceID string) error {
	return nil
}
