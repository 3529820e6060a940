package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultTimeout = 60 * time.Second
)

// OpenAIProvider translates canonical requests to OpenAI's
// /chat/completions wire format.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
}

// OpenAIOption customizes the adapter.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL overrides the API base URL (proxies, tests).
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = url }
}

// WithOpenAITimeout overrides the per-call timeout. Upstream LLM latency
// is inherently variable, so this is typically longer than the
// caller-facing request timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) { p.client.Timeout = d }
}

// NewOpenAIProvider creates a new OpenAI adapter.
func NewOpenAIProvider(opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client: &http.Client{
			Timeout: openAIDefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: openAIDefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request to OpenAI
func (p *OpenAIProvider) Complete(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	wire := openAIRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		wire.Temperature = &t
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindBadRequest, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindBadRequest, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindUnavailable, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr openAIError
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Provider: p.Name(), Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}

	var wireResp openAIResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindUnavailable, Message: fmt.Sprintf("decode response: %v", err)}
	}

	out := &ChatResponse{
		ID:    wireResp.ID,
		Model: wireResp.Model,
		Usage: TokenUsage{
			InputTokens:  wireResp.Usage.PromptTokens,
			OutputTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:  wireResp.Usage.TotalTokens,
		},
		ProviderLatency: latency,
	}
	for _, c := range wireResp.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        c.Index,
			Message:      c.Message,
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Provider: p.Name(), Kind: KindTimeout, Message: err.Error()}
	}
	return &Error{Provider: p.Name(), Kind: KindUnavailable, Message: err.Error()}
}

// Close cleans up resources
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
