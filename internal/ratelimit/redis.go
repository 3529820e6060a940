package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"llm_proxy/internal/models"
)

// RedisLimiter implements distributed rate limiting on Redis. Each
// (workspace, window) pair maps to a counter key whose name embeds the
// window's start, so rollover is implicit: a new window means a new key,
// and the old one expires on its own. The reserve path runs as a single
// Lua script, which is the atomic compare-and-increment the design
// requires for correctness under concurrent requests.
type RedisLimiter struct {
	client *redis.Client

	// now is injectable for tests
	now func() time.Time
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// reserveScript checks all windows first and increments only when every
// window allows, returning {1} on success or {0, mask} where mask has
// bit i set when window i was violated.
var reserveScript = redis.NewScript(`
	local violated = 0
	for i = 1, 3 do
		local limit = tonumber(ARGV[i])
		if limit > 0 then
			local current = tonumber(redis.call('GET', KEYS[i])) or 0
			if current + 1 > limit then
				violated = violated + 2 ^ (i - 1)
			end
		end
	end
	if violated > 0 then
		return {0, violated}
	end
	for i = 1, 3 do
		local count = redis.call('INCR', KEYS[i])
		if count == 1 then
			redis.call('EXPIRE', KEYS[i], ARGV[3 + i])
		end
	end
	return {1, 0}
`)

// incrementScript unconditionally increments all windows.
var incrementScript = redis.NewScript(`
	for i = 1, 3 do
		local count = redis.call('INCR', KEYS[i])
		if count == 1 then
			redis.call('EXPIRE', KEYS[i], ARGV[i])
		end
	end
	return 1
`)

// Check evaluates the ceilings without mutating any counter.
func (l *RedisLimiter) Check(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	if ceilings.Unlimited() {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	keys := l.windowKeys(workspaceID, now)

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	limits := limitsFor(ceilings)
	decision := Decision{Allowed: true}
	for i, w := range models.WindowTypes {
		if limits[i] <= 0 {
			continue
		}
		count := parseCount(values[i])
		if count+1 > int64(limits[i]) {
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
func (l *RedisLimiter) Reserve(ctx context.Context, workspaceID string, ceilings Ceilings) (Decision, error) {
	if ceilings.Unlimited() {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	keys := l.windowKeys(workspaceID, now)
	limits := limitsFor(ceilings)

	result, err := reserveScript.Run(ctx, l.client, keys,
		limits[0], limits[1], limits[2],
		ttlSeconds(models.WindowMinute), ttlSeconds(models.WindowHour), ttlSeconds(models.WindowDay),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit reserve failed: %w", err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("rate limit reserve: unexpected script result %v", result)
	}

	if result[0] == 1 {
		return Decision{Allowed: true}, nil
	}

	decision := Decision{Allowed: false}
	mask := result[1]
	for i, w := range models.WindowTypes {
		if mask&(1<<i) == 0 {
			continue
		}
		retry := retryAfter(w, now)
		if decision.RetryAfter == 0 || retry < decision.RetryAfter {
			decision.RetryAfter = retry
		}
	}
	return decision, nil
}

// Increment unconditionally increments all three windows.
func (l *RedisLimiter) Increment(ctx context.Context, workspaceID string) error {
	now := l.now()
	keys := l.windowKeys(workspaceID, now)

	err := incrementScript.Run(ctx, l.client, keys,
		ttlSeconds(models.WindowMinute), ttlSeconds(models.WindowHour), ttlSeconds(models.WindowDay),
	).Err()
	if err != nil {
		return fmt.Errorf("rate limit increment failed: %w", err)
	}
	return nil
}

// Reset clears all windows for a workspace (admin use).
func (l *RedisLimiter) Reset(ctx context.Context, workspaceID string) error {
	now := l.now()
	return l.client.Del(ctx, l.windowKeys(workspaceID, now)...).Err()
}

// Windows returns the current counter state, mostly for diagnostics.
func (l *RedisLimiter) Windows(ctx context.Context, workspaceID string) ([]models.RateLimitWindow, error) {
	now := l.now()
	values, err := l.client.MGet(ctx, l.windowKeys(workspaceID, now)...).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit windows: %w", err)
	}

	windows := make([]models.RateLimitWindow, 0, len(models.WindowTypes))
	for i, w := range models.WindowTypes {
		windows = append(windows, models.RateLimitWindow{
			WorkspaceID:  workspaceID,
			Window:       w,
			WindowStart:  windowStart(w, now),
			RequestCount: int(parseCount(values[i])),
		})
	}
	return windows, nil
}

func (l *RedisLimiter) windowKeys(workspaceID string, now time.Time) []string {
	keys := make([]string, 0, len(models.WindowTypes))
	for _, w := range models.WindowTypes {
		start := windowStart(w, now)
		keys = append(keys, fmt.Sprintf("ratelimit:%s:%s:%d", workspaceID, w, start.Unix()))
	}
	return keys
}

func windowStart(w models.WindowType, now time.Time) time.Time {
	return now.UTC().Truncate(w.Duration())
}

func retryAfter(w models.WindowType, now time.Time) time.Duration {
	end := windowStart(w, now).Add(w.Duration())
	retry := end.Sub(now.UTC())
	if retry < time.Second {
		retry = time.Second
	}
	return retry
}

// ttlSeconds keeps a rolled-over window's key around for one extra
// period so diagnostics can still see it before Redis reaps it.
func ttlSeconds(w models.WindowType) int {
	return int(2 * w.Duration() / time.Second)
}

func limitsFor(c Ceilings) [3]int {
	return [3]int{c.PerMinute, c.PerHour, c.PerDay}
}

func parseCount(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}
