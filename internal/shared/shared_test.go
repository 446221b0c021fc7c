package shared

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(fmt.Errorf("begin tx: %w", ErrPersistence)))
	require.True(t, IsTransient(fmt.Errorf("identity: %w", ErrUnavailable)))
	require.False(t, IsTransient(fmt.Errorf("bad amount: %w", ErrValidation)))
	require.False(t, IsTransient(ErrIdempotencyConflict))
	require.ErrorIs(t, ErrIdempotencyConflict, ErrConflict)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), Identity{Subject: "ana", Role: "staff"})
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "staff", id.Role)
	require.Equal(t, "ana", id.Subject)
}

func TestNilIdempotencyStore(t *testing.T) {
	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), "k", "stock"))
	require.NoError(t, store.Delete(context.Background(), "k"))
	require.NoError(t, store.Cleanup(context.Background(), 0))
}
