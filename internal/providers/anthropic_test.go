package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var wire map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))

		// System messages are lifted out of the message list
		assert.Equal(t, "Be terse.", wire["system"])
		messages := wire["messages"].([]any)
		require.Len(t, messages, 1)

		// max_tokens is mandatory, defaulted when unset
		assert.EqualValues(t, 1024, wire["max_tokens"])

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg-123",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]string{
				{"type": "text", "text": "Hi "},
				{"type": "text", "text": "there"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 20, "output_tokens": 5},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider(WithAnthropicBaseURL(server.URL))
	defer p.Close()

	resp, err := p.Complete(context.Background(), "sk-ant-test", ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []Message{
			{Role: "system", Content: "Be terse."},
			{Role: "user", Content: "Hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-123", resp.ID)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
	assert.Equal(t, 20, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 25, resp.Usage.TotalTokens, "total is derived from input+output")
}

func TestAnthropicProvider_ErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider(WithAnthropicBaseURL(server.URL))
	defer p.Close()

	_, err := p.Complete(context.Background(), "sk-ant-test", ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindRateLimited, perr.Kind)
	assert.True(t, perr.Retryable())
	assert.Contains(t, perr.Message, "slow down")
}

func TestRegistry(t *testing.T) {
	openai := NewOpenAIProvider()
	anthropic := NewAnthropicProvider()
	defer openai.Close()
	defer anthropic.Close()

	r := NewRegistry(openai, anthropic)

	p, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = r.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = r.Get("mistral")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"openai", "anthropic"}, r.Names())
}
