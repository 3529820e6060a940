package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"llm_proxy/internal/models"
)

var (
	// ErrInvalidToken is returned for malformed or unknown tokens
	ErrInvalidToken = errors.New("invalid access token")
)

// HashToken hashes a workspace access token using SHA-256. Tokens are
// random high-entropy strings, so a plain hash is enough to keep the
// plaintext out of the database.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}

// WorkspaceStore resolves a token hash to its workspace.
type WorkspaceStore interface {
	GetByAccessTokenHash(ctx context.Context, tokenHash string) (*models.Workspace, error)
}

// TokenResolver authenticates workspace access tokens.
type TokenResolver struct {
	store WorkspaceStore
}

// NewTokenResolver creates a new token resolver
func NewTokenResolver(store WorkspaceStore) *TokenResolver {
	return &TokenResolver{store: store}
}

// Resolve looks up the workspace owning a plaintext token. The token
// may arrive with a "Bearer " prefix; it is stripped here.
func (r *TokenResolver) Resolve(ctx context.Context, token string) (*models.Workspace, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	workspace, err := r.store.GetByAccessTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, ErrInvalidToken
	}
	return workspace, nil
}
