package answercache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "answer", time.Minute))
	require.NoError(t, cache.Set(ctx, "forever", "kept", 0))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "answer", got)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, _ = cache.Get(ctx, "forever")
	require.True(t, ok)
	require.Equal(t, "kept", got)

	_, ok, _ = cache.Get(ctx, "missing")
	require.False(t, ok)
}
