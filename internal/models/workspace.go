package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is a tenant boundary. Every quota, rate limit and usage row
// hangs off a workspace, and a workspace may carry its own provider API
// keys as a fallback when no centralized key is configured.
type Workspace struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	AccessTokenHash string    `db:"access_token_hash"` // SHA-256 hash of the gateway token

	// ProviderKeys maps provider name -> plaintext upstream API key.
	// Keys must be sent verbatim upstream, so they are stored as-is.
	ProviderKeys JSONB `db:"provider_api_keys"`

	// Monthly spend limit in USD. A limit may be negative; nothing in
	// this layer validates it (matching the existing admin UI behavior,
	// where a negative limit simply denies everything).
	UsageLimitMonthly float64 `db:"usage_limit_monthly"`
	UsageLimitEnabled bool    `db:"usage_limit_enabled"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ProviderKey returns the workspace-owned API key for a provider, or ""
// when none is stored.
func (w *Workspace) ProviderKey(provider string) string {
	if w.ProviderKeys == nil {
		return ""
	}
	key, _ := w.ProviderKeys[provider].(string)
	return key
}
