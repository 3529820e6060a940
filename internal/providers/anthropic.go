package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultTimeout = 60 * time.Second
	anthropicVersion        = "2023-06-01"

	// Anthropic requires max_tokens; applied when the caller sets none.
	anthropicDefaultMaxTokens = 1024
)

// AnthropicProvider translates canonical requests to Anthropic's
// /v1/messages wire format. System-role messages are lifted into the
// top-level system field, which is where Anthropic expects them.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
}

// AnthropicOption customizes the adapter.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL overrides the API base URL (proxies, tests).
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = url }
}

// WithAnthropicTimeout overrides the per-call timeout.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(p *AnthropicProvider) { p.client.Timeout = d }
}

// NewAnthropicProvider creates a new Anthropic adapter.
func NewAnthropicProvider(opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		client: &http.Client{
			Timeout: anthropicDefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: anthropicDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat completion request to Anthropic
func (p *AnthropicProvider) Complete(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	wire := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = anthropicDefaultMaxTokens
	}
	if req.Temperature != 0 {
		t := req.Temperature
		wire.Temperature = &t
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		wire.Messages = append(wire.Messages, m)
	}
	wire.System = strings.Join(system, "\n")

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindBadRequest, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindBadRequest, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Provider: p.Name(), Kind: KindTimeout, Message: err.Error()}
		}
		return nil, &Error{Provider: p.Name(), Kind: KindUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindUnavailable, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Provider: p.Name(), Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}

	var wireResp anthropicResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindUnavailable, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var text strings.Builder
	for _, block := range wireResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		ID:    wireResp.ID,
		Model: wireResp.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: text.String()},
			FinishReason: wireResp.StopReason,
		}},
		Usage: TokenUsage{
			InputTokens:  wireResp.Usage.InputTokens,
			OutputTokens: wireResp.Usage.OutputTokens,
			TotalTokens:  wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
		},
		ProviderLatency: latency,
	}, nil
}

// Close cleans up resources
func (p *AnthropicProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
