package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm_proxy/internal/models"
)

type fakeWorkspaceStore struct {
	byHash map[string]*models.Workspace
}

func (s *fakeWorkspaceStore) GetByAccessTokenHash(ctx context.Context, tokenHash string) (*models.Workspace, error) {
	ws, ok := s.byHash[tokenHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return ws, nil
}

func TestHashToken(t *testing.T) {
	h := HashToken("tok-secret")

	assert.Len(t, h, 64) // hex-encoded SHA-256
	assert.Equal(t, h, HashToken("tok-secret"))
	assert.NotEqual(t, h, HashToken("tok-secret2"))
}

func TestTokenResolver_Resolve(t *testing.T) {
	ws := &models.Workspace{ID: uuid.New(), Name: "acme"}
	store := &fakeWorkspaceStore{byHash: map[string]*models.Workspace{
		HashToken("tok-good"): ws,
	}}
	resolver := NewTokenResolver(store)
	ctx := context.Background()

	t.Run("plain token", func(t *testing.T) {
		got, err := resolver.Resolve(ctx, "tok-good")
		require.NoError(t, err)
		assert.Equal(t, ws.ID, got.ID)
	})

	t.Run("bearer prefix is stripped", func(t *testing.T) {
		got, err := resolver.Resolve(ctx, "Bearer tok-good")
		require.NoError(t, err)
		assert.Equal(t, ws.ID, got.ID)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "tok-revoked")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("bare bearer prefix", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "Bearer ")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
