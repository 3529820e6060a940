package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm_proxy/internal/providers"
)

func TestResponseCache_HitAndMiss(t *testing.T) {
	c := NewResponseCache(10, time.Minute)

	resp := &providers.ChatResponse{
		ID:    "resp-1",
		Model: "gpt-4o",
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: "hello"}},
		},
	}

	_, ok := c.Get("fp-1")
	assert.False(t, ok)

	c.Set("fp-1", resp)

	got, ok := c.Get("fp-1")
	require.True(t, ok)
	assert.Same(t, resp, got)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestResponseCache_Clear(t *testing.T) {
	c := NewResponseCache(10, time.Minute)
	c.Set("fp-1", &providers.ChatResponse{ID: "resp-1"})

	c.Clear()
	_, ok := c.Get("fp-1")
	assert.False(t, ok)
}
