package planstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// MemoryCache is the in-process fallback used when no DATABASE_URL is
// configured. Get does not check expiry: an entry stays until Invalidate or
// CleanupExpired removes it, matching the teacher's pattern of a dumb, dependency-free
// fallback behind the same interface as the real backend.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	plans   map[string]schemas.Plan        // planID -> plan
	bySig   map[string]string              // taskSignature -> planID
	entries map[string]*schemas.CacheEntry // taskSignature -> entry
}

// NewMemoryCache constructs an empty in-memory cache with the given TTL.
func NewMemoryCache(ttlDays int) *MemoryCache {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &MemoryCache{
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		plans:   make(map[string]schemas.Plan),
		bySig:   make(map[string]string),
		entries: make(map[string]*schemas.CacheEntry),
	}
}

func (c *MemoryCache) Get(ctx context.Context, taskSignature string) (*schemas.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	planID, ok := c.bySig[taskSignature]
	if !ok {
		return nil, nil
	}
	plan := c.plans[planID]
	if entry, ok := c.entries[taskSignature]; ok {
		entry.HitCount++
		entry.LastUsedAt = time.Now()
	}
	return &plan, nil
}

func (c *MemoryCache) GetByID(ctx context.Context, planID string) (*schemas.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	plan, ok := c.plans[planID]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (c *MemoryCache) Put(ctx context.Context, plan schemas.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan.Version = 1
	if existingID, ok := c.bySig[plan.TaskSignature]; ok {
		if existing, ok := c.plans[existingID]; ok {
			plan.Version = existing.Version + 1
		}
	}
	plan.IsActive = true
	c.plans[plan.ID] = plan
	c.bySig[plan.TaskSignature] = plan.ID

	c.entries[plan.TaskSignature] = &schemas.CacheEntry{
		CacheKey:   cacheKeyOf(plan.TaskSignature),
		PlanID:     plan.ID,
		LastUsedAt: time.Now(),
		ExpiresAt:  time.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, taskSignature string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bySig, taskSignature)
	delete(c.entries, taskSignature)
	return nil
}

func (c *MemoryCache) CleanupExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := time.Now()
	for sig, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.bySig, sig)
			delete(c.entries, sig)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) Stats(ctx context.Context) (schemas.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := schemas.CacheStats{Total: len(c.entries)}
	now := time.Now()
	var totalHits int64
	type sigHit struct {
		sig string
		hit int64
	}
	ranked := make([]sigHit, 0, len(c.entries))
	for sig, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			stats.Expired++
		}
		totalHits += entry.HitCount
		ranked = append(ranked, sigHit{sig, entry.HitCount})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].hit > ranked[j].hit })
	for i := 0; i < len(ranked) && i < 5; i++ {
		stats.Top = append(stats.Top, ranked[i].sig)
	}
	if stats.Total > 0 {
		stats.HitRate = float64(totalHits) / float64(stats.Total)
	}
	return stats, nil
}

func (c *MemoryCache) Refresh(ctx context.Context, taskSignature string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[taskSignature]
	if !ok {
		return fmt.Errorf("planstore: no cache entry for signature")
	}
	entry.ExpiresAt = time.Now().Add(c.ttl)
	return nil
}
