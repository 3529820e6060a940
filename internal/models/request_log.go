package models

import (
	"time"
)

// RequestLog is one row of the request audit table. Unlike the usage
// ledger it records every proxied request, including cache hits and
// failures, and is written asynchronously in batches.
type RequestLog struct {
	ID          string    `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"request_id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Provider    string    `db:"provider" json:"provider"`
	ModelName   string    `db:"model_name" json:"model_name"`
	Endpoint    string    `db:"endpoint" json:"endpoint"`
	KeySource   string    `db:"key_source" json:"key_source"`
	CacheHit    bool      `db:"cache_hit" json:"cache_hit"`
	CostUSD     float64   `db:"cost_usd" json:"cost_usd"`
	ProviderMS  int64     `db:"provider_ms" json:"provider_ms"`
	GatewayMS   int64     `db:"gateway_ms" json:"gateway_ms"`
	ErrorText   string    `db:"error_text" json:"error_text,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
