package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"llm_proxy/internal/providers"
)

func baseRequest() providers.ChatRequest {
	return providers.ChatRequest{
		Model: "gpt-4o",
		Messages: []providers.Message{
			{Role: "system", Content: "You are a helpful assistant."},
			{Role: "user", Content: "Summarize this issue."},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("openai", "ws-1", baseRequest())
	b := Fingerprint("openai", "ws-1", baseRequest())
	assert.Equal(t, a, b)
}

func TestFingerprint_SensitiveToEveryField(t *testing.T) {
	base := Fingerprint("openai", "ws-1", baseRequest())

	t.Run("provider", func(t *testing.T) {
		assert.NotEqual(t, base, Fingerprint("anthropic", "ws-1", baseRequest()))
	})

	t.Run("workspace", func(t *testing.T) {
		assert.NotEqual(t, base, Fingerprint("openai", "ws-2", baseRequest()))
	})

	t.Run("model", func(t *testing.T) {
		req := baseRequest()
		req.Model = "gpt-4o-mini"
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})

	t.Run("temperature", func(t *testing.T) {
		req := baseRequest()
		req.Temperature = 0.8
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})

	t.Run("max tokens", func(t *testing.T) {
		req := baseRequest()
		req.MaxTokens = 512
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})

	t.Run("message content whitespace", func(t *testing.T) {
		req := baseRequest()
		req.Messages[1].Content = "Summarize this issue. "
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})

	t.Run("message role", func(t *testing.T) {
		req := baseRequest()
		req.Messages[1].Role = "assistant"
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})

	t.Run("message order", func(t *testing.T) {
		req := baseRequest()
		req.Messages[0], req.Messages[1] = req.Messages[1], req.Messages[0]
		assert.NotEqual(t, base, Fingerprint("openai", "ws-1", req))
	})
}

func TestFingerprint_FieldBoundariesDoNotCollide(t *testing.T) {
	// Shifting bytes between adjacent fields must change the key
	a := Fingerprint("openai", "ws-1", providers.ChatRequest{
		Model:    "m",
		Messages: []providers.Message{{Role: "ab", Content: "c"}},
	})
	b := Fingerprint("openai", "ws-1", providers.ChatRequest{
		Model:    "m",
		Messages: []providers.Message{{Role: "a", Content: "bc"}},
	})
	assert.NotEqual(t, a, b)
}
