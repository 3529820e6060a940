package cache

import (
	"sync/atomic"
	"time"

	"llm_proxy/internal/providers"
)

// ResponseCache memoizes canonical completion responses keyed by request
// fingerprint. It is process-local and rebuilt empty on restart; in a
// horizontally scaled deployment instances may disagree on what is
// cached, which costs at most one extra upstream call. It is purely an
// optimization: a miss is never an error, and disabling it must not
// change any other component's behavior.
type ResponseCache struct {
	lru *LRU[*providers.ChatResponse]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a cache bounded to capacity entries with the
// given TTL.
func NewResponseCache(capacity int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		lru: NewLRU[*providers.ChatResponse](capacity, ttl),
	}
}

// Get returns the cached response for a fingerprint, or nil on miss or
// TTL expiry. Callers must treat the returned response as read-only; it
// may be shared with concurrent readers.
func (c *ResponseCache) Get(fingerprint string) (*providers.ChatResponse, bool) {
	resp, ok := c.lru.Get(fingerprint)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return resp, true
}

// Set stores a fresh response under its fingerprint.
func (c *ResponseCache) Set(fingerprint string, resp *providers.ChatResponse) {
	c.lru.Set(fingerprint, resp)
}

// Clear drops all entries.
func (c *ResponseCache) Clear() {
	c.lru.Clear()
}

// ResponseCacheStats reports hit/miss counters on top of the LRU stats.
type ResponseCacheStats struct {
	Stats
	Hits   int64
	Misses int64
}

// GetStats returns current cache statistics
func (c *ResponseCache) GetStats() ResponseCacheStats {
	return ResponseCacheStats{
		Stats:  c.lru.GetStats(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
