package ratelimit

import (
	"context"
	"sync"
	"time"

	"llm_proxy/internal/models"
)

// MemoryLimiter is a process-local limiter for standalone deployments
// and tests. The mutex is the serialization point that makes
// check-then-increment atomic per workspace; it is not suitable for
// horizontally scaled deployments, where counters must live in shared
// state (see RedisLimiter).
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]map[models.WindowType]*models.RateLimitWindow

	// now is injectable for tests
	now func() time.Time
}

// NewMemoryLimiter creates a new in-memory limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]map[models.WindowType]*models.RateLimitWindow),
		now:     time.Now,
	}
}

// Check evaluates the ceilings without mutating state. Expired windows
// count as zero; the actual rollover happens on Reserve/Increment.
func (l *MemoryLimiter) Check(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limits := limitsFor(ceilings)

	decision := Decision{Allowed: true}
	for i, w := range models.WindowTypes {
		if limits[i] <= 0 {
			continue
		}
		count := l.currentCount(workspaceID, w, now)
		if count+1 > limits[i] {
			decision.Allowed = false
			retry := retryAfter(w, now)
			if decision.RetryAfter == 0 || retry < decision.RetryAfter {
				decision.RetryAfter = retry
			}
		}
	}
	return decision, nil
}

// Reserve atomically checks and increments all three windows.
func (l *MemoryLimiter) Reserve(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limits := limitsFor(ceilings)

	decision := Decision{Allowed: true}
	for i, w := range models.WindowTypes {
		if limits[i] <= 0 {
			continue
		}
		count := l.currentCount(workspaceID, w, now)
		if count+1 > limits[i] {
			decision.Allowed = false
			retry := retryAfter(w, now)
			if decision.RetryAfter == 0 || retry < decision.RetryAfter {
				decision.RetryAfter = retry
			}
		}
	}
	if !decision.Allowed {
		return decision, nil
	}

	l.incrementLocked(workspaceID, now)
	return decision, nil
}

// Increment unconditionally increments all three windows.
func (l *MemoryLimiter) Increment(ctx context.Context, workspaceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.incrementLocked(workspaceID, l.now())
	return nil
}

// Reset clears all windows for a workspace.
func (l *MemoryLimiter) Reset(ctx context.Context, workspaceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, workspaceID)
	return nil
}

func (l *MemoryLimiter) currentCount(workspaceID string, w models.WindowType, now time.Time) int {
	byWindow, ok := l.windows[workspaceID]
	if !ok {
		return 0
	}
	win, ok := byWindow[w]
	if !ok || win.Expired(now) {
		return 0
	}
	return win.RequestCount
}

func (l *MemoryLimiter) incrementLocked(workspaceID string, now time.Time) {
	byWindow, ok := l.windows[workspaceID]
	if !ok {
		byWindow = make(map[models.WindowType]*models.RateLimitWindow, len(models.WindowTypes))
		l.windows[workspaceID] = byWindow
	}

	for _, w := range models.WindowTypes {
		win, ok := byWindow[w]
		if !ok || win.Expired(now) {
			byWindow[w] = &models.RateLimitWindow{
				WorkspaceID:  workspaceID,
				Window:       w,
				WindowStart:  windowStart(w, now),
				RequestCount: 1,
			}
			continue
		}
		win.RequestCount++
	}
}
