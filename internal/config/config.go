package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the proxy.
type Config struct {
	HTTPPort       string
	Environment    string // "development" or "production"
	AdminJWTSecret []byte

	Database      DatabaseConfig
	Redis         RedisConfig
	ResponseCache ResponseCacheConfig
	RateLimits    RateLimitConfig
	Proxy         ProxyConfig
	ProviderKeys  map[string]string // provider name -> centralized API key
	LoggingSink   LoggingSinkConfig

	// PricingOverrides adjusts or adds per-model prices on top of the
	// built-in table.
	PricingOverrides map[string]PricingOverride
}

// PricingOverride is one model's USD price per million tokens.
type PricingOverride struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	WorkspaceCacheSize int
	WorkspaceCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool // false = in-memory rate limiting and queueing
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ResponseCacheConfig holds response cache settings
type ResponseCacheConfig struct {
	Capacity int
	TTL      time.Duration
}

// RateLimitConfig holds the per-workspace request ceilings. Zero
// disables a window.
type RateLimitConfig struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// ProxyConfig holds request pipeline settings
type ProxyConfig struct {
	ProviderTimeout time.Duration // bound on each upstream dispatch
}

// LoggingSinkConfig holds configuration for the audit log pipeline
type LoggingSinkConfig struct {
	Enabled      bool
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	S3Enabled  bool
	S3Bucket   string
	S3Region   string
	S3Prefix   string
	InstanceID string // identifies this instance in S3 key names
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	providerKeys := map[string]string{}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providerKeys["openai"] = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providerKeys["anthropic"] = key
	}

	var pricingOverrides map[string]PricingOverride
	if raw := os.Getenv("PRICING_OVERRIDES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pricingOverrides); err != nil {
			return nil, fmt.Errorf("invalid PRICING_OVERRIDES: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:       getEnvString("HTTP_PORT", "8080"),
		Environment:    getEnvString("ENVIRONMENT", "development"),
		AdminJWTSecret: []byte(getEnvString("ADMIN_JWT_SECRET", "supersecretkey")),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),

			WorkspaceCacheSize: getEnvInt("CACHE_WORKSPACE_SIZE", 1000),
			WorkspaceCacheTTL:  getEnvDuration("CACHE_WORKSPACE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", true),
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		ResponseCache: ResponseCacheConfig{
			Capacity: getEnvInt("RESPONSE_CACHE_CAPACITY", 1000),
			TTL:      getEnvDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
		},
		RateLimits: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
			PerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 1000),
			PerDay:    getEnvInt("RATE_LIMIT_PER_DAY", 10000),
		},
		Proxy: ProxyConfig{
			ProviderTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		ProviderKeys: providerKeys,
		LoggingSink: LoggingSinkConfig{
			Enabled:      getEnvBool("LOGGING_SINK_ENABLED", true),
			BatchSize:    getEnvInt("LOGGING_SINK_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("LOGGING_SINK_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("LOGGING_SINK_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("LOGGING_SINK_RETRY_BACKOFF", 1*time.Second),

			S3Enabled:  getEnvBool("LOGGING_SINK_S3_ENABLED", false),
			S3Bucket:   getEnvString("LOGGING_SINK_S3_BUCKET", ""),
			S3Region:   getEnvString("LOGGING_SINK_S3_REGION", "us-east-1"),
			S3Prefix:   getEnvString("LOGGING_SINK_S3_PREFIX", "logs/"),
			InstanceID: getEnvString("INSTANCE_ID", "proxy-0"),
		},
		PricingOverrides: pricingOverrides,
	}

	return cfg, nil
}
