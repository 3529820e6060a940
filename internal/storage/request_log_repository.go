package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"llm_proxy/internal/models"
)

// RequestLogRepository persists the request audit log. Rows arrive in
// batches from the logging sink, so inserts run inside a transaction.
type RequestLogRepository struct {
	db *DB
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

// InsertBatch writes a batch of audit rows in a single transaction
func (r *RequestLogRepository) InsertBatch(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO request_logs (id, request_id, workspace_id, user_id, provider,
		                          model_name, endpoint, key_source, cache_hit,
		                          cost_usd, provider_ms, gateway_ms, error_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	for _, entry := range logs {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}

		_, err := tx.ExecContext(
			ctx, query,
			entry.ID, entry.RequestID, entry.WorkspaceID, entry.UserID, entry.Provider,
			entry.ModelName, entry.Endpoint, entry.KeySource, entry.CacheHit,
			entry.CostUSD, entry.ProviderMS, entry.GatewayMS, entry.ErrorText, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert request log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit request logs: %w", err)
	}

	return nil
}

// ListRecent returns the most recent audit rows for a workspace
func (r *RequestLogRepository) ListRecent(ctx context.Context, workspaceID uuid.UUID, limit int) ([]*models.RequestLog, error) {
	query := `
		SELECT id, request_id, workspace_id, user_id, provider, model_name,
		       endpoint, key_source, cache_hit, cost_usd, provider_ms,
		       gateway_ms, error_text, created_at
		FROM request_logs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var logs []*models.RequestLog
	err := r.db.conn.SelectContext(ctx, &logs, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}

	return logs, nil
}
