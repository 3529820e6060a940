package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	c.Set("a", "1")
	val, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](3, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the oldest
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "entry %s should survive", key)
	}
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "1")

	now = now.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry past its TTL should be absent")
	assert.Equal(t, 0, c.Len())
}

func TestLRU_SetRefreshesTTL(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "1")
	now = now.Add(45 * time.Second)
	c.Set("a", "2")

	now = now.Add(45 * time.Second)
	val, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", val)
}

func TestLRU_CleanupExpired(t *testing.T) {
	c := NewLRU[int](10, time.Minute)

	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(2 * time.Minute)
	c.Set("c", 3)

	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Clear(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRU_GetStats(t *testing.T) {
	c := NewLRU[int](5, time.Minute)
	c.Set("a", 1)

	stats := c.GetStats()
	assert.Equal(t, 5, stats.Capacity)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, time.Minute, stats.TTL)
}
