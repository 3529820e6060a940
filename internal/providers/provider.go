package providers

import (
	"context"
	"fmt"
	"time"
)

// Message is one turn of a chat conversation, in canonical form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical chat-completion request the proxy accepts.
// Adapters translate it into their vendor's wire format.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// TokenUsage is the token accounting a vendor reports for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatResponse is the canonical completion payload.
type ChatResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   TokenUsage `json:"usage"`

	// ProviderLatency is the measured wall time of the upstream call.
	ProviderLatency time.Duration `json:"-"`
}

// Provider is implemented by each concrete LLM vendor adapter. Adding a
// vendor means adding an implementation; nothing else changes.
type Provider interface {
	// Name returns the provider identifier requests select adapters by
	// ("openai", "anthropic", ...).
	Name() string

	// Complete sends a chat completion request using the given API key.
	// Vendor error payloads are mapped to *Error; the raw vendor shape
	// never escapes the adapter.
	Complete(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error)

	// Close releases idle connections.
	Close() error
}

// Registry holds the configured adapters, selected by provider name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get resolves a provider name to its adapter.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Close closes all registered adapters.
func (r *Registry) Close() error {
	for _, p := range r.providers {
		_ = p.Close()
	}
	return nil
}
