package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"llm_proxy/internal/models"
)

// WorkspaceRepository handles workspace database operations
type WorkspaceRepository struct {
	db *DB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// GetByID retrieves a workspace by ID, using the short-lived cache
func (r *WorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	cacheKey := "workspace:id:" + id.String()
	if ws, ok := r.db.workspaceCache.Get(cacheKey); ok {
		return ws, nil
	}

	var workspace models.Workspace
	query := `
		SELECT id, name, access_token_hash, provider_api_keys,
		       usage_limit_monthly, usage_limit_enabled, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &workspace, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	r.db.workspaceCache.Set(cacheKey, &workspace)
	return &workspace, nil
}

// GetByAccessTokenHash resolves an access token hash to its workspace.
// Token lookups are not cached: a revoked token must stop working as
// soon as its row is gone.
func (r *WorkspaceRepository) GetByAccessTokenHash(ctx context.Context, tokenHash string) (*models.Workspace, error) {
	var workspace models.Workspace
	query := `
		SELECT id, name, access_token_hash, provider_api_keys,
		       usage_limit_monthly, usage_limit_enabled, created_at, updated_at
		FROM workspaces
		WHERE access_token_hash = $1
	`

	err := r.db.conn.GetContext(ctx, &workspace, query, tokenHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccessTokenNotFound
		}
		return nil, fmt.Errorf("failed to get workspace by token: %w", err)
	}

	return &workspace, nil
}

// List returns all workspaces
func (r *WorkspaceRepository) List(ctx context.Context) ([]*models.Workspace, error) {
	query := `
		SELECT id, name, access_token_hash, provider_api_keys,
		       usage_limit_monthly, usage_limit_enabled, created_at, updated_at
		FROM workspaces
		ORDER BY name
	`

	var workspaces []*models.Workspace
	err := r.db.conn.SelectContext(ctx, &workspaces, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	return workspaces, nil
}

// Create creates a new workspace
func (r *WorkspaceRepository) Create(ctx context.Context, workspace *models.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, access_token_hash, provider_api_keys,
		                        usage_limit_monthly, usage_limit_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	if workspace.ID == uuid.Nil {
		workspace.ID = uuid.New()
	}
	if workspace.ProviderKeys == nil {
		workspace.ProviderKeys = models.JSONB{}
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		workspace.ID, workspace.Name, workspace.AccessTokenHash, workspace.ProviderKeys,
		workspace.UsageLimitMonthly, workspace.UsageLimitEnabled,
	).Scan(&workspace.CreatedAt, &workspace.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	return nil
}

// UpdateUsageLimit changes the monthly limit and its enabled flag
func (r *WorkspaceRepository) UpdateUsageLimit(ctx context.Context, id uuid.UUID, limit float64, enabled bool) error {
	query := `
		UPDATE workspaces
		SET usage_limit_monthly = $2, usage_limit_enabled = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id, limit, enabled)
	if err != nil {
		return fmt.Errorf("failed to update usage limit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}

	r.db.workspaceCache.Delete("workspace:id:" + id.String())
	return nil
}

// UpdateProviderKeys replaces the per-workspace provider key map
func (r *WorkspaceRepository) UpdateProviderKeys(ctx context.Context, id uuid.UUID, keys models.JSONB) error {
	query := `
		UPDATE workspaces
		SET provider_api_keys = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.conn.ExecContext(ctx, query, id, keys)
	if err != nil {
		return fmt.Errorf("failed to update provider keys: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}

	r.db.workspaceCache.Delete("workspace:id:" + id.String())
	return nil
}

// Delete deletes a workspace
func (r *WorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := "DELETE FROM workspaces WHERE id = $1"
	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWorkspaceNotFound
	}

	r.db.workspaceCache.Delete("workspace:id:" + id.String())
	return nil
}
