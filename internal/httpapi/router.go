package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"llm_proxy/internal/auth"
	"llm_proxy/internal/cache"
	"llm_proxy/internal/config"
	"llm_proxy/internal/logging"
	"llm_proxy/internal/pricing"
	"llm_proxy/internal/providers"
	"llm_proxy/internal/proxy"
	"llm_proxy/internal/queue"
	"llm_proxy/internal/ratelimit"
	"llm_proxy/internal/storage"
	"llm_proxy/internal/usage"
	"llm_proxy/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	DB       *storage.DB
	Redis    *redis.Client
	Registry *providers.Registry
	Monitor  *usage.Monitor
	Proxy    *proxy.Service
	Tokens   *auth.TokenResolver
	Sink     logging.Sink
	Config   *config.Config

	logger *utils.Logger

	// queueSink is non-nil when the audit pipeline is running and must
	// be drained on shutdown
	queueSink *logging.QueueSink
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,

		WorkspaceCacheSize: cfg.Database.WorkspaceCacheSize,
		WorkspaceCacheTTL:  cfg.Database.WorkspaceCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	workspaceRepo := db.NewWorkspaceRepository()
	usageRepo := db.NewUsageRepository()
	requestLogRepo := db.NewRequestLogRepository()

	// Rate limiter: distributed when Redis is available, process-local
	// otherwise
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	// Audit log pipeline
	var sink logging.Sink = logging.NewNoopSink()
	var queueSink *logging.QueueSink
	if cfg.LoggingSink.Enabled {
		queueCfg := queue.DefaultConfig("request-log")
		queueCfg.BatchSize = cfg.LoggingSink.BatchSize
		queueCfg.BatchTimeout = cfg.LoggingSink.BatchTimeout
		queueCfg.MaxRetries = cfg.LoggingSink.MaxRetries
		queueCfg.RetryBackoff = cfg.LoggingSink.RetryBackoff

		var auditQueue queue.Queue
		var auditDLQ queue.DeadLetterQueue
		if redisClient != nil {
			auditQueue = queue.NewRedisQueue(redisClient, queueCfg)
			auditDLQ = queue.NewRedisDeadLetterQueue(redisClient, queueCfg)
		} else {
			auditQueue = queue.NewMemoryQueue(queueCfg)
			auditDLQ = queue.NewMemoryDeadLetterQueue()
		}

		var s3Writer *logging.S3Writer
		if cfg.LoggingSink.S3Enabled && cfg.LoggingSink.S3Bucket != "" {
			s3Writer, err = logging.NewS3Writer(
				context.Background(),
				cfg.LoggingSink.S3Bucket,
				cfg.LoggingSink.S3Region,
				cfg.LoggingSink.S3Prefix,
				cfg.LoggingSink.InstanceID,
			)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to initialize S3 writer: %w", err)
			}
		}

		queueSink = logging.NewQueueSink(auditQueue, auditDLQ, requestLogRepo, s3Writer, queueCfg)
		queueSink.Start(context.Background())
		sink = queueSink
	}

	registry := providers.NewRegistry(
		providers.NewOpenAIProvider(providers.WithOpenAITimeout(cfg.Proxy.ProviderTimeout)),
		providers.NewAnthropicProvider(providers.WithAnthropicTimeout(cfg.Proxy.ProviderTimeout)),
	)

	monitor := usage.NewMonitor(workspaceRepo, usageRepo, utils.NewLogger("usage"))

	var priceOverrides map[string]pricing.ModelPricing
	if len(cfg.PricingOverrides) > 0 {
		priceOverrides = make(map[string]pricing.ModelPricing, len(cfg.PricingOverrides))
		for model, p := range cfg.PricingOverrides {
			priceOverrides[model] = pricing.ModelPricing{
				InputPerMTok:  p.InputPerMTok,
				OutputPerMTok: p.OutputPerMTok,
			}
		}
	}

	proxyService := proxy.NewService(
		registry,
		monitor,
		limiter,
		cache.NewResponseCache(cfg.ResponseCache.Capacity, cfg.ResponseCache.TTL),
		pricing.NewTable(priceOverrides),
		sink,
		proxy.Config{
			CentralKeys: cfg.ProviderKeys,
			Ceilings: ratelimit.Ceilings{
				PerMinute: cfg.RateLimits.PerMinute,
				PerHour:   cfg.RateLimits.PerHour,
				PerDay:    cfg.RateLimits.PerDay,
			},
			ProviderTimeout: cfg.Proxy.ProviderTimeout,
		},
	)

	deps := &Dependencies{
		DB:        db,
		Redis:     redisClient,
		Registry:  registry,
		Monitor:   monitor,
		Proxy:     proxyService,
		Tokens:    auth.NewTokenResolver(workspaceRepo),
		Sink:      sink,
		Config:    cfg,
		logger:    utils.NewLogger("httpapi"),
		queueSink: queueSink,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	return mux, deps, nil
}

// Shutdown drains the audit pipeline and closes connections.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	if d.queueSink != nil {
		if err := d.queueSink.Shutdown(ctx); err != nil {
			d.logger.Error("Failed to drain audit pipeline", "error", err)
		}
	}
	_ = d.Registry.Close()
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	return d.DB.Close()
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Proxy endpoint, authenticated by workspace access token
	mux.HandleFunc("POST /v1/chat/completions", deps.handleChat)

	// Usage endpoints
	mux.HandleFunc("GET /v1/workspaces/{id}/usage", deps.handleGetUsage)
	mux.HandleFunc("PUT /v1/workspaces/{id}/limit", deps.handleUpdateLimit)

	// Health check endpoint, public
	mux.HandleFunc("GET /health", deps.handleHealth)
}
