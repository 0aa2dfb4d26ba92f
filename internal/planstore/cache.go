// Package planstore implements the plan cache: a keyed, TTL-bounded store
// mapping a task signature to its most recently promoted Plan.
package planstore

import (
	"context"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// Cache is the contract the orchestrator drives for cache lookup, replay
// bookkeeping, and invalidation-on-regeneration.
type Cache interface {
	Get(ctx context.Context, taskSignature string) (*schemas.Plan, error)
	GetByID(ctx context.Context, planID string) (*schemas.Plan, error)
	Put(ctx context.Context, plan schemas.Plan) error
	Invalidate(ctx context.Context, taskSignature string) error
	CleanupExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (schemas.CacheStats, error)
	Refresh(ctx context.Context, taskSignature string) error
}

// cacheKeyOf computes the storage key for a task signature: sha256("cache_" || signature).
func cacheKeyOf(taskSignature string) string {
	return sha256Hex("cache_" + taskSignature)
}
