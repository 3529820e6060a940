package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"llm_proxy/internal/models"
)

// UsageRepository handles the append-only usage ledger
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert appends a usage record to the ledger
func (r *UsageRepository) Insert(ctx context.Context, record *models.UsageRecord) error {
	query := `
		INSERT INTO usage_records (id, workspace_id, user_id, provider, model_name,
		                           endpoint, input_tokens, output_tokens, total_tokens,
		                           estimated_cost, cache_hit, latency_ms, month_year,
		                           request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.MonthYear == "" {
		record.MonthYear = models.MonthYear(record.CreatedAt)
	}

	_, err := r.db.conn.ExecContext(
		ctx, query,
		record.ID, record.WorkspaceID, record.UserID, record.Provider, record.ModelName,
		record.Endpoint, record.InputTokens, record.OutputTokens, record.TotalTokens,
		record.EstimatedCost, record.CacheHit, record.LatencyMS, record.MonthYear,
		record.RequestID, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// SumCostForMonth returns the total estimated cost accrued by a
// workspace in the given month bucket. Months with no records sum
// to zero.
func (r *UsageRepository) SumCostForMonth(ctx context.Context, workspaceID uuid.UUID, monthYear string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(estimated_cost), 0)
		FROM usage_records
		WHERE workspace_id = $1 AND month_year = $2
	`

	var total float64
	err := r.db.conn.GetContext(ctx, &total, query, workspaceID, monthYear)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}

	return total, nil
}

// ListForMonth returns the raw ledger rows for a workspace and month,
// newest first
func (r *UsageRepository) ListForMonth(ctx context.Context, workspaceID uuid.UUID, monthYear string, limit int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, workspace_id, user_id, provider, model_name, endpoint,
		       input_tokens, output_tokens, total_tokens, estimated_cost,
		       cache_hit, latency_ms, month_year, request_id, created_at
		FROM usage_records
		WHERE workspace_id = $1 AND month_year = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var records []*models.UsageRecord
	err := r.db.conn.SelectContext(ctx, &records, query, workspaceID, monthYear, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	return records, nil
}
