package planstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchloom/pagewatch/internal/schemas"
)

func samplePlan(signature string) schemas.Plan {
	return schemas.Plan{ID: "plan-" + signature, TaskSignature: signature, Instruction: "do it", URL: "https://example.com"}
}

func TestMemoryCache_PutThenGet(t *testing.T) {
	c := NewMemoryCache(7)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))

	plan, err := c.Get(ctx, "sig-1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-sig-1", plan.ID)
}

func TestMemoryCache_GetMiss(t *testing.T) {
	c := NewMemoryCache(7)
	plan, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestMemoryCache_PutIncrementsVersionOnConflict(t *testing.T) {
	c := NewMemoryCache(7)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))
	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))

	plan, err := c.Get(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Version)
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache(7)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))
	require.NoError(t, c.Invalidate(ctx, "sig-1"))

	plan, err := c.Get(ctx, "sig-1")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestMemoryCache_CleanupExpired(t *testing.T) {
	c := NewMemoryCache(7)
	c.ttl = -1 * time.Second // force immediate expiry
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))

	removed, err := c.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache(7)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, samplePlan("sig-1")))
	_, _ = c.Get(ctx, "sig-1")
	_, _ = c.Get(ctx, "sig-1")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, float64(2), stats.HitRate)
}

func TestCacheKeyOf_Deterministic(t *testing.T) {
	assert.Equal(t, cacheKeyOf("a|b"), cacheKeyOf("a|b"))
	assert.NotEqual(t, cacheKeyOf("a|b"), cacheKeyOf("a|c"))
}
