package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/clock"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, time.Hour)
	ctx := context.Background()

	id, err := store.Issue(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	clk.Advance(50 * time.Minute)
	ok, err := store.Touch(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok, "touch within ttl")

	// the touch above pushed expiry out again
	clk.Advance(50 * time.Minute)
	ok, _ = store.Touch(ctx, id)
	assert.True(t, ok)

	clk.Advance(2 * time.Hour)
	ok, _ = store.Touch(ctx, id)
	assert.False(t, ok, "expired")

	ok, _ = store.Touch(ctx, "never-issued")
	assert.False(t, ok)
}

func TestMemoryStoreWithoutTTL(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)

	id, err := store.Issue(context.Background())
	require.NoError(t, err)
	clk.Advance(24 * 365 * time.Hour)

	ok, err := store.Touch(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}
