package models

import (
	"time"

	"github.com/google/uuid"
)

// MonthYearLayout is the time layout for the calendar-month bucket
// spend quotas are evaluated against, e.g. "2025-07".
const MonthYearLayout = "2006-01"

// MonthYear returns the month-year bucket for a timestamp, in UTC.
func MonthYear(t time.Time) string {
	return t.UTC().Format(MonthYearLayout)
}

// UsageRecord is one row of the append-only usage ledger: a single
// completed upstream call. Rows are immutable once written; cache hits
// never produce one.
type UsageRecord struct {
	ID            uuid.UUID `db:"id"`
	WorkspaceID   uuid.UUID `db:"workspace_id"`
	UserID        string    `db:"user_id"`
	Provider      string    `db:"provider"`
	ModelName     string    `db:"model_name"`
	Endpoint      string    `db:"endpoint"` // caller-supplied attribution tag
	InputTokens   int       `db:"input_tokens"`
	OutputTokens  int       `db:"output_tokens"`
	TotalTokens   int       `db:"total_tokens"`
	EstimatedCost float64   `db:"estimated_cost"` // USD, unrounded
	CacheHit      bool      `db:"cache_hit"`
	LatencyMS     int64     `db:"latency_ms"`
	MonthYear     string    `db:"month_year"`
	RequestID     string    `db:"request_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// WorkspaceUsage is the derived monthly usage view for a workspace. It is
// never persisted; the Usage Monitor computes it from the ledger plus the
// workspace's limit configuration.
type WorkspaceUsage struct {
	WorkspaceID    uuid.UUID `json:"workspace_id"`
	MonthYear      string    `json:"month_year"`
	TotalCost      float64   `json:"total_cost"`
	Limit          float64   `json:"limit"`
	LimitEnabled   bool      `json:"limit_enabled"`
	PercentageUsed float64   `json:"percentage_used"`
	IsOverLimit    bool      `json:"is_over_limit"`
}
