package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm_proxy/internal/cache"
	"llm_proxy/internal/models"
	"llm_proxy/internal/pricing"
	"llm_proxy/internal/providers"
	"llm_proxy/internal/ratelimit"
	"llm_proxy/internal/usage"
)

// stubProvider returns a canned response or error and counts calls.
type stubProvider struct {
	name  string
	resp  *providers.ChatResponse
	err   error
	calls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ctx context.Context, apiKey string, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func (p *stubProvider) Close() error { return nil }

// fakeMonitor enforces a limit against its own running total, mirroring
// how the real monitor reads the ledger.
type fakeMonitor struct {
	mu           sync.Mutex
	totalCost    float64
	limit        float64
	limitEnabled bool
	checkErr     error
	recordErr    error
	records      []*models.UsageRecord
}

func (m *fakeMonitor) CheckWorkspaceQuota(ctx context.Context, workspaceID uuid.UUID) (usage.QuotaDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkErr != nil {
		return usage.QuotaDecision{}, m.checkErr
	}

	view := &models.WorkspaceUsage{
		WorkspaceID:  workspaceID,
		TotalCost:    m.totalCost,
		Limit:        m.limit,
		LimitEnabled: m.limitEnabled,
	}
	if m.limitEnabled && m.totalCost > m.limit {
		view.IsOverLimit = true
		return usage.QuotaDecision{Allowed: false, Usage: view, Message: "monthly usage limit exceeded"}, nil
	}
	return usage.QuotaDecision{Allowed: true, Usage: view}, nil
}

func (m *fakeMonitor) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, record)
	m.totalCost += record.EstimatedCost
	return nil
}

// countingLimiter wraps a decision and counts reservations.
type countingLimiter struct {
	decision ratelimit.Decision
	err      error
	reserves int
}

func (l *countingLimiter) Check(ctx context.Context, workspaceID string, c ratelimit.Ceilings) (ratelimit.Decision, error) {
	return l.decision, l.err
}

func (l *countingLimiter) Reserve(ctx context.Context, workspaceID string, c ratelimit.Ceilings) (ratelimit.Decision, error) {
	l.reserves++
	return l.decision, l.err
}

func (l *countingLimiter) Increment(ctx context.Context, workspaceID string) error {
	return l.err
}

// recordingSink collects audit entries.
type recordingSink struct {
	mu      sync.Mutex
	entries []*models.RequestLog
}

func (s *recordingSink) Enqueue(rec *models.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, rec)
	return nil
}

func (s *recordingSink) byRequest(requestID string) *models.RequestLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.RequestID == requestID {
			return e
		}
	}
	return nil
}

type fixture struct {
	service   *Service
	provider  *stubProvider
	monitor   *fakeMonitor
	limiter   *countingLimiter
	sink      *recordingSink
	workspace *models.Workspace
}

func okResponse() *providers.ChatResponse {
	return &providers.ChatResponse{
		ID:    "resp-1",
		Model: "gpt-4o",
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: "done"}},
		},
		Usage:           providers.TokenUsage{InputTokens: 1000, OutputTokens: 500, TotalTokens: 1500},
		ProviderLatency: 120 * time.Millisecond,
	}
}

func newFixture(opts ...func(*fixture)) *fixture {
	f := &fixture{
		provider: &stubProvider{name: "openai", resp: okResponse()},
		monitor:  &fakeMonitor{limit: 100, limitEnabled: true},
		limiter:  &countingLimiter{decision: ratelimit.Decision{Allowed: true}},
		sink:     &recordingSink{},
		workspace: &models.Workspace{
			ID:   uuid.New(),
			Name: "acme",
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.service = NewService(
		providers.NewRegistry(f.provider),
		f.monitor,
		f.limiter,
		cache.NewResponseCache(100, time.Minute),
		pricing.NewTable(nil),
		f.sink,
		Config{
			CentralKeys:     map[string]string{"openai": "sk-central"},
			Ceilings:        ratelimit.Ceilings{PerMinute: 60},
			ProviderTimeout: time.Second,
		},
	)
	return f
}

func testRequest() Request {
	return Request{
		Provider: "openai",
		Model:    "gpt-4o",
		Messages: []providers.Message{
			{Role: "user", Content: "Summarize this issue."},
		},
		Endpoint: "issue-summary",
	}
}

func TestProcessRequest_Success(t *testing.T) {
	f := newFixture()

	resp, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
	require.NoError(t, err)

	assert.False(t, resp.CacheHit)
	assert.Equal(t, KeySourceCentralized, resp.KeySource)
	assert.Equal(t, "done", resp.Completion.Choices[0].Message.Content)
	assert.NotEmpty(t, resp.RequestID)

	// Cost: 1000 in + 500 out on gpt-4o = 0.0025 + 0.005
	assert.InDelta(t, 0.0075, resp.CostUSD, 1e-9)

	require.Len(t, f.monitor.records, 1)
	record := f.monitor.records[0]
	assert.Equal(t, f.workspace.ID, record.WorkspaceID)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "issue-summary", record.Endpoint)
	assert.Equal(t, 1500, record.TotalTokens)
	assert.InDelta(t, 0.0075, record.EstimatedCost, 1e-9)

	assert.Equal(t, 1, f.limiter.reserves)

	entry := f.sink.byRequest(resp.RequestID)
	require.NotNil(t, entry)
	assert.False(t, entry.CacheHit)
	assert.Empty(t, entry.ErrorText)
}

func TestProcessRequest_CacheHit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Same(t, first.Completion, second.Completion)

	// The hit consumed nothing: one upstream call, one usage record,
	// one rate reservation
	assert.Equal(t, 1, f.provider.calls)
	assert.Len(t, f.monitor.records, 1)
	assert.Equal(t, 1, f.limiter.reserves)
	assert.Zero(t, second.CostUSD)
}

func TestProcessRequest_CacheIsPerWorkspace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.NoError(t, err)

	other := &models.Workspace{ID: uuid.New(), Name: "other"}
	resp, err := f.service.ProcessRequest(ctx, other, "user-1", testRequest())
	require.NoError(t, err)

	assert.False(t, resp.CacheHit, "an identical request from another workspace must not share cache entries")
	assert.Equal(t, 2, f.provider.calls)
}

func TestProcessRequest_QuotaDenied(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.monitor.totalCost = 150
	})

	_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.True(t, quotaErr.Usage.IsOverLimit)

	assert.Zero(t, f.provider.calls, "no upstream call after quota denial")
	assert.Zero(t, f.limiter.reserves, "no rate budget consumed after quota denial")
	assert.Empty(t, f.monitor.records)
}

func TestProcessRequest_SoftQuotaAdmitsBoundaryRequest(t *testing.T) {
	// A workspace just under its limit is admitted even though the
	// request will push it over; only the next request is denied.
	f := newFixture(func(f *fixture) {
		f.monitor.limit = 0.005
		f.monitor.totalCost = 0.0049
	})
	ctx := context.Background()

	resp, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	// The recorded cost pushed the workspace over its limit
	assert.Greater(t, f.monitor.totalCost, f.monitor.limit)

	req := testRequest()
	req.Messages = []providers.Message{{Role: "user", Content: "Another prompt."}}
	_, err = f.service.ProcessRequest(ctx, f.workspace, "user-1", req)

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
}

func TestProcessRequest_QuotaCheckFailsOpen(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.monitor.checkErr = errors.New("database down")
	})

	resp, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
	require.NoError(t, err, "a quota-check infrastructure failure must not block traffic")
	assert.Equal(t, 1, f.provider.calls)
	assert.False(t, resp.CacheHit)
}

func TestProcessRequest_RateLimited(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.limiter.decision = ratelimit.Decision{Allowed: false, RetryAfter: 42 * time.Second}
	})

	_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

	var rateErr *RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 42*time.Second, rateErr.RetryAfter)

	assert.Zero(t, f.provider.calls)
	assert.Empty(t, f.monitor.records)
}

func TestProcessRequest_RateLimiterFailureIsInfrastructureError(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.limiter.err = errors.New("redis down")
	})

	_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

	var infraErr *InfrastructureError
	require.ErrorAs(t, err, &infraErr)
	assert.Zero(t, f.provider.calls)
}

func TestProcessRequest_KeyPrecedence(t *testing.T) {
	t.Run("workspace key used when no central key", func(t *testing.T) {
		f := newFixture()
		f.service.config.CentralKeys = nil
		f.workspace.ProviderKeys = models.JSONB{"openai": "sk-workspace"}

		resp, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
		require.NoError(t, err)
		assert.Equal(t, KeySourceWorkspace, resp.KeySource)
	})

	t.Run("central key wins over workspace key", func(t *testing.T) {
		f := newFixture()
		f.workspace.ProviderKeys = models.JSONB{"openai": "sk-workspace"}

		resp, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
		require.NoError(t, err)
		assert.Equal(t, KeySourceCentralized, resp.KeySource)
	})

	t.Run("no key anywhere is a configuration error", func(t *testing.T) {
		f := newFixture()
		f.service.config.CentralKeys = nil

		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

		var configErr *ConfigurationError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "openai", configErr.Provider)
		assert.Zero(t, f.provider.calls)
	})

	t.Run("unknown provider is a configuration error", func(t *testing.T) {
		f := newFixture()

		req := testRequest()
		req.Provider = "mistral"
		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", req)

		var configErr *ConfigurationError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "mistral", configErr.Provider)
	})
}

func TestProcessRequest_UpstreamErrorMapping(t *testing.T) {
	t.Run("auth failure is not retryable", func(t *testing.T) {
		f := newFixture(func(f *fixture) {
			f.provider.err = &providers.Error{Provider: "openai", Kind: providers.KindAuthFailed, Status: 401, Message: "bad key"}
		})

		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.False(t, upErr.Retryable)
	})

	t.Run("vendor 5xx is retryable", func(t *testing.T) {
		f := newFixture(func(f *fixture) {
			f.provider.err = &providers.Error{Provider: "openai", Kind: providers.KindUnavailable, Status: 503, Message: "down"}
		})

		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.True(t, upErr.Retryable)
	})

	t.Run("timeout maps to TimeoutError", func(t *testing.T) {
		f := newFixture(func(f *fixture) {
			f.provider.err = &providers.Error{Provider: "openai", Kind: providers.KindTimeout, Message: "deadline"}
		})

		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())

		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	})

	t.Run("failed attempt records no usage but keeps its rate slot", func(t *testing.T) {
		f := newFixture(func(f *fixture) {
			f.provider.err = &providers.Error{Provider: "openai", Kind: providers.KindUnavailable, Status: 500, Message: "down"}
		})

		_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
		require.Error(t, err)

		assert.Empty(t, f.monitor.records, "no tokens consumed, nothing to meter")
		assert.Equal(t, 1, f.limiter.reserves)
	})
}

func TestProcessRequest_UsageRecordFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.monitor.recordErr = errors.New("insert failed")
	})

	resp, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
	require.NoError(t, err, "a paid-for completion is returned even when the ledger write fails")
	assert.Equal(t, "done", resp.Completion.Choices[0].Message.Content)
}

func TestProcessRequest_FailedResponsesAreNotCached(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.provider.err = &providers.Error{Provider: "openai", Kind: providers.KindUnavailable, Status: 500, Message: "down"}
	})
	ctx := context.Background()

	_, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.Error(t, err)

	// Provider recovers; the retry must reach upstream, not the cache
	f.provider.err = nil
	resp, err := f.service.ProcessRequest(ctx, f.workspace, "user-1", testRequest())
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 2, f.provider.calls)
}

func TestProcessRequest_AuditsDenials(t *testing.T) {
	f := newFixture(func(f *fixture) {
		f.monitor.totalCost = 150
	})

	_, err := f.service.ProcessRequest(context.Background(), f.workspace, "user-1", testRequest())
	require.Error(t, err)

	require.Len(t, f.sink.entries, 1)
	assert.NotEmpty(t, f.sink.entries[0].ErrorText)
}
