package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"llm_proxy/internal/cache"
	"llm_proxy/internal/logging"
	"llm_proxy/internal/models"
	"llm_proxy/internal/pricing"
	"llm_proxy/internal/providers"
	"llm_proxy/internal/ratelimit"
	"llm_proxy/internal/usage"
	"llm_proxy/internal/utils"
)

// Key sources, recorded in the audit log for each request
const (
	KeySourceCentralized = "centralized"
	KeySourceWorkspace   = "workspace"
	KeySourceCache       = "cache"
)

// UsageMonitor is the slice of the usage monitor the proxy needs.
type UsageMonitor interface {
	CheckWorkspaceQuota(ctx context.Context, workspaceID uuid.UUID) (usage.QuotaDecision, error)
	RecordUsage(ctx context.Context, record *models.UsageRecord) error
}

// Request is one proxied chat completion.
type Request struct {
	Provider    string
	Model       string
	Messages    []providers.Message
	Temperature float64
	MaxTokens   int

	// Endpoint is a caller-supplied attribution tag ("issue-summary",
	// "comment-draft", ...). It has no effect on routing.
	Endpoint string
}

// Response is the proxy's answer: the completion plus where the key
// came from and whether the cache served it.
type Response struct {
	Completion *providers.ChatResponse
	RequestID  string
	KeySource  string
	CacheHit   bool
	CostUSD    float64
	Latency    time.Duration
}

// Config holds the proxy's tuning knobs.
type Config struct {
	// CentralKeys maps provider name -> operator-owned API key. These
	// take precedence over workspace-owned keys.
	CentralKeys map[string]string

	// Ceilings are the per-workspace request ceilings.
	Ceilings ratelimit.Ceilings

	// ProviderTimeout bounds each upstream dispatch.
	ProviderTimeout time.Duration
}

// Service orchestrates a proxied request through key resolution, the
// quota gate, the response cache, the rate limiter and the provider
// adapter, then records usage and audit entries.
type Service struct {
	registry *providers.Registry
	monitor  UsageMonitor
	limiter  ratelimit.Limiter
	cache    *cache.ResponseCache
	pricing  *pricing.Table
	sink     logging.Sink
	logger   *utils.Logger
	config   Config

	// now is injectable for tests
	now func() time.Time
}

// NewService creates a new proxy service
func NewService(
	registry *providers.Registry,
	monitor UsageMonitor,
	limiter ratelimit.Limiter,
	responseCache *cache.ResponseCache,
	priceTable *pricing.Table,
	sink logging.Sink,
	config Config,
) *Service {
	return &Service{
		registry: registry,
		monitor:  monitor,
		limiter:  limiter,
		cache:    responseCache,
		pricing:  priceTable,
		sink:     sink,
		logger:   utils.NewLogger("proxy"),
		config:   config,
		now:      time.Now,
	}
}

// ProcessRequest runs one request through the full pipeline.
//
// Order matters: the quota gate runs before any money can be spent,
// the cache is consulted before the rate limiter so hits consume no
// rate budget, and the limiter reservation is the only mutation that
// happens before dispatch. A reservation consumed by a failed upstream
// call is not refunded; the attempt still loaded the proxy.
func (s *Service) ProcessRequest(ctx context.Context, workspace *models.Workspace, userID string, req Request) (*Response, error) {
	start := s.now()
	requestID := uuid.New().String()

	// Resolve the adapter and the API key before touching any state.
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, &ConfigurationError{Provider: req.Provider, Reason: "unknown provider"}
	}

	apiKey, keySource, err := s.resolveKey(workspace, req.Provider)
	if err != nil {
		return nil, err
	}

	// Quota gate. An infrastructure failure here fails open: blocking
	// all traffic because the ledger is briefly unreadable is worse
	// than letting a few requests through unmetered.
	decision, err := s.monitor.CheckWorkspaceQuota(ctx, workspace.ID)
	if err != nil {
		s.logger.Warn("Quota check failed, allowing request",
			"workspace_id", workspace.ID, "error", err)
	} else if !decision.Allowed {
		s.audit(workspace, userID, requestID, req, keySource, false, 0, 0, start, decision.Message)
		return nil, &QuotaExceededError{Usage: decision.Usage, Message: decision.Message}
	}

	// Cache lookup. A hit costs nothing: no usage record, no rate
	// budget, no upstream call.
	chatReq := providers.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	fingerprint := cache.Fingerprint(req.Provider, workspace.ID.String(), chatReq)

	if cached, ok := s.cache.Get(fingerprint); ok {
		s.audit(workspace, userID, requestID, req, KeySourceCache, true, 0, 0, start, "")
		return &Response{
			Completion: cached,
			RequestID:  requestID,
			KeySource:  keySource,
			CacheHit:   true,
			Latency:    s.now().Sub(start),
		}, nil
	}

	// Rate gate. Unlike the quota check this fails closed: the limiter
	// is the only thing standing between a retry storm and the
	// upstream vendor.
	rateDecision, err := s.limiter.Reserve(ctx, workspace.ID.String(), s.config.Ceilings)
	if err != nil {
		return nil, &InfrastructureError{Op: "rate limiter", Err: err}
	}
	if !rateDecision.Allowed {
		s.audit(workspace, userID, requestID, req, keySource, false, 0, 0, start, "rate limited")
		return nil, &RateLimitedError{RetryAfter: rateDecision.RetryAfter}
	}

	// Dispatch
	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	completion, err := adapter.Complete(dispatchCtx, apiKey, chatReq)
	if err != nil {
		mapped := s.mapUpstreamError(req.Provider, err, s.now().Sub(start))
		s.audit(workspace, userID, requestID, req, keySource, false, 0, 0, start, mapped.Error())
		return nil, mapped
	}

	cost := s.pricing.Estimate(req.Model, completion.Usage.InputTokens, completion.Usage.OutputTokens)

	// Record usage on a context detached from the caller: once the
	// upstream call succeeded the spend happened, and a client
	// disconnect must not lose the ledger row.
	record := &models.UsageRecord{
		WorkspaceID:   workspace.ID,
		UserID:        userID,
		Provider:      req.Provider,
		ModelName:     req.Model,
		Endpoint:      req.Endpoint,
		InputTokens:   completion.Usage.InputTokens,
		OutputTokens:  completion.Usage.OutputTokens,
		TotalTokens:   completion.Usage.TotalTokens,
		EstimatedCost: cost,
		LatencyMS:     completion.ProviderLatency.Milliseconds(),
		RequestID:     requestID,
	}
	if err := s.monitor.RecordUsage(context.WithoutCancel(ctx), record); err != nil {
		// The completion is already paid for; losing the row skews the
		// ledger low but must not fail the request.
		s.logger.Warn("Failed to record usage",
			"workspace_id", workspace.ID, "request_id", requestID, "error", err)
	}

	s.cache.Set(fingerprint, completion)

	s.audit(workspace, userID, requestID, req, keySource, false, cost,
		completion.ProviderLatency.Milliseconds(), start, "")

	return &Response{
		Completion: completion,
		RequestID:  requestID,
		KeySource:  keySource,
		CacheHit:   false,
		CostUSD:    cost,
		Latency:    s.now().Sub(start),
	}, nil
}

// resolveKey picks the API key for a provider: the operator's
// centralized key wins, then the workspace's own key.
func (s *Service) resolveKey(workspace *models.Workspace, provider string) (string, string, error) {
	if key := s.config.CentralKeys[provider]; key != "" {
		return key, KeySourceCentralized, nil
	}
	if key := workspace.ProviderKey(provider); key != "" {
		return key, KeySourceWorkspace, nil
	}
	return "", "", &ConfigurationError{Provider: provider, Reason: "no API key configured"}
}

// mapUpstreamError converts adapter failures into the proxy's error
// taxonomy.
func (s *Service) mapUpstreamError(provider string, err error, elapsed time.Duration) error {
	var perr *providers.Error
	if errors.As(err, &perr) {
		if perr.Kind == providers.KindTimeout {
			return &TimeoutError{Provider: provider, Elapsed: elapsed}
		}
		return &UpstreamError{Provider: provider, Retryable: perr.Retryable(), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: provider, Elapsed: elapsed}
	}
	return &UpstreamError{Provider: provider, Retryable: true, Err: err}
}

func (s *Service) audit(
	workspace *models.Workspace,
	userID, requestID string,
	req Request,
	keySource string,
	cacheHit bool,
	cost float64,
	providerMS int64,
	start time.Time,
	errorText string,
) {
	if s.sink == nil {
		return
	}

	_ = s.sink.Enqueue(&models.RequestLog{
		RequestID:   requestID,
		WorkspaceID: workspace.ID.String(),
		UserID:      userID,
		Provider:    req.Provider,
		ModelName:   req.Model,
		Endpoint:    req.Endpoint,
		KeySource:   keySource,
		CacheHit:    cacheHit,
		CostUSD:     cost,
		ProviderMS:  providerMS,
		GatewayMS:   s.now().Sub(start).Milliseconds(),
		ErrorText:   errorText,
		CreatedAt:   s.now().UTC(),
	})
}
