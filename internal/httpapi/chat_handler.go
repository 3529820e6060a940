package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"llm_proxy/internal/providers"
	"llm_proxy/internal/proxy"
	"llm_proxy/internal/utils"
)

// chatRequest is the wire shape of a proxied completion request.
type chatRequest struct {
	Provider    string              `json:"provider"`
	Model       string              `json:"model"`
	Messages    []providers.Message `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`

	// Endpoint tags the request for usage attribution
	Endpoint string `json:"endpoint,omitempty"`

	// UserID identifies the end user behind the request
	UserID string `json:"user_id,omitempty"`
}

// chatResponse wraps the completion with proxy metadata.
type chatResponse struct {
	*providers.ChatResponse
	RequestID string  `json:"request_id"`
	CacheHit  bool    `json:"cache_hit"`
	CostUSD   float64 `json:"cost_usd"`
}

// handleChat proxies one chat completion request.
//
// Flow:
//  1. Authenticate via Bearer workspace token
//  2. Decode and validate the JSON body
//  3. Run the proxy pipeline (quota, cache, rate limit, dispatch)
//  4. Map pipeline errors to status codes
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspace, err := d.Tokens.Resolve(ctx, r.Header.Get("Authorization"))
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "missing or invalid access token")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Provider == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'provider' field")
		return
	}
	if req.Model == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'model' field")
		return
	}
	if len(req.Messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "missing 'messages' field")
		return
	}

	resp, err := d.Proxy.ProcessRequest(ctx, workspace, req.UserID, proxy.Request{
		Provider:    req.Provider,
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Endpoint:    req.Endpoint,
	})
	if err != nil {
		d.respondPipelineError(w, err)
		return
	}

	w.Header().Set("X-Request-ID", resp.RequestID)
	utils.RespondWithJSON(w, http.StatusOK, chatResponse{
		ChatResponse: resp.Completion,
		RequestID:    resp.RequestID,
		CacheHit:     resp.CacheHit,
		CostUSD:      resp.CostUSD,
	})
}

// respondPipelineError maps the proxy's error taxonomy to HTTP status
// codes.
func (d *Dependencies) respondPipelineError(w http.ResponseWriter, err error) {
	var (
		configErr  *proxy.ConfigurationError
		quotaErr   *proxy.QuotaExceededError
		rateErr    *proxy.RateLimitedError
		timeoutErr *proxy.TimeoutError
		upErr      *proxy.UpstreamError
		infraErr   *proxy.InfrastructureError
	)

	switch {
	case errors.As(err, &configErr):
		// The missing-key detail names which side forgot to configure a
		// key; that is operator information, not client information.
		message := "AI service unavailable"
		if d.Config.Environment == "development" {
			message = configErr.Error()
		}
		d.logger.Error("Provider not configured", "provider", configErr.Provider, "reason", configErr.Reason)
		utils.RespondWithError(w, http.StatusServiceUnavailable, message)

	case errors.As(err, &quotaErr):
		utils.RespondWithError(w, http.StatusPaymentRequired, quotaErr.Message)

	case errors.As(err, &rateErr):
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		utils.RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")

	case errors.As(err, &timeoutErr):
		utils.RespondWithError(w, http.StatusGatewayTimeout, "upstream provider timed out")

	case errors.As(err, &upErr):
		utils.RespondWithError(w, http.StatusBadGateway, "upstream provider error")

	case errors.As(err, &infraErr):
		d.logger.Error("Infrastructure failure", "op", infraErr.Op, "error", infraErr.Err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")

	default:
		d.logger.Error("Unexpected pipeline error", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}
