package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
	"github.com/watchloom/pagewatch/internal/store"
)

// PostgresCache is the Postgres-backed Cache, upserting by task signature
// and tracking hit accounting in plan_cache.
type PostgresCache struct {
	pool store.DBPool
	log  *zap.Logger
	ttl  time.Duration
}

// NewPostgresCache wraps an already-migrated pool (store.New has run).
func NewPostgresCache(pool store.DBPool, ttlDays int, logger *zap.Logger) *PostgresCache {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &PostgresCache{pool: pool, ttl: time.Duration(ttlDays) * 24 * time.Hour, log: logger.Named("planstore.postgres")}
}

// Get looks up the active plan for a task signature. Read errors are
// swallowed and logged once, returning (nil, nil), per the cache-errors
// taxonomy: a cache miss must never fail the caller's request.
func (c *PostgresCache) Get(ctx context.Context, taskSignature string) (*schemas.Plan, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT p.id, p.task_signature, p.instruction, p.url, p.steps, p.expected_results,
		       p.error_handling, p.validation, p.metadata, p.version, p.is_active
		FROM plan_cache c
		JOIN execution_plans p ON p.id = c.plan_id
		WHERE c.task_signature = $1 AND c.expires_at > now()`, taskSignature)

	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		c.log.Warn("cache read failed, treating as miss", zap.Error(err))
		return nil, nil
	}

	if _, err := c.pool.Exec(ctx, `
		UPDATE plan_cache SET hit_count = hit_count + 1, last_used_at = now()
		WHERE task_signature = $1`, taskSignature); err != nil {
		c.log.Warn("failed to update cache hit accounting", zap.Error(err))
	}
	return &plan, nil
}

// GetByID looks up a plan directly, bypassing the cache-expiry check (used
// by executionOnly mode with an explicit planId).
func (c *PostgresCache) GetByID(ctx context.Context, planID string) (*schemas.Plan, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, task_signature, instruction, url, steps, expected_results,
		       error_handling, validation, metadata, version, is_active
		FROM execution_plans WHERE id = $1`, planID)

	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("planstore: get by id: %w", err)
	}
	return &plan, nil
}

// Put stores a newly generated/promoted plan and upserts its cache entry by
// task signature, incrementing version on conflict.
func (c *PostgresCache) Put(ctx context.Context, plan schemas.Plan) error {
	steps, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("planstore: marshal steps: %w", err)
	}
	expected, err := json.Marshal(plan.ExpectedResults)
	if err != nil {
		return fmt.Errorf("planstore: marshal expected results: %w", err)
	}
	errHandling, err := json.Marshal(plan.ErrorHandling)
	if err != nil {
		return fmt.Errorf("planstore: marshal error handling: %w", err)
	}
	validation, err := json.Marshal(plan.Validation)
	if err != nil {
		return fmt.Errorf("planstore: marshal validation: %w", err)
	}
	metadata, err := json.Marshal(plan.Metadata)
	if err != nil {
		return fmt.Errorf("planstore: marshal metadata: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("planstore: begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			c.log.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO execution_plans (id, task_signature, instruction, url, steps, expected_results, error_handling, validation, metadata, version, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			steps = EXCLUDED.steps, expected_results = EXCLUDED.expected_results,
			error_handling = EXCLUDED.error_handling, validation = EXCLUDED.validation,
			metadata = EXCLUDED.metadata, version = execution_plans.version + 1`,
		plan.ID, plan.TaskSignature, plan.Instruction, plan.URL, steps, expected, errHandling, validation, metadata); err != nil {
		return fmt.Errorf("planstore: upsert plan: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO plan_cache (cache_key, task_signature, plan_id, hit_count, last_used_at, expires_at)
		VALUES ($1, $2, $3, 0, now(), now() + $4::interval)
		ON CONFLICT (task_signature) DO UPDATE SET
			plan_id = EXCLUDED.plan_id, expires_at = EXCLUDED.expires_at`,
		cacheKeyOf(plan.TaskSignature), plan.TaskSignature, plan.ID, fmt.Sprintf("%d seconds", int(c.ttl.Seconds()))); err != nil {
		return fmt.Errorf("planstore: upsert cache entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("planstore: commit: %w", err)
	}
	return nil
}

// Invalidate deletes the cache entry (not the underlying plan row), forcing
// the next lookup to miss. The orchestrator does not call it: after a
// regeneration it replaces the entry with Put.
func (c *PostgresCache) Invalidate(ctx context.Context, taskSignature string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM plan_cache WHERE task_signature = $1`, taskSignature); err != nil {
		c.log.Error("cache invalidate failed", zap.Error(err))
		return fmt.Errorf("planstore: invalidate: %w", err)
	}
	return nil
}

// CleanupExpired removes expired cache entries and reports how many were removed.
func (c *PostgresCache) CleanupExpired(ctx context.Context) (int, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM plan_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("planstore: cleanup expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats summarizes the cache for observability.
func (c *PostgresCache) Stats(ctx context.Context) (schemas.CacheStats, error) {
	var stats schemas.CacheStats
	var totalHits int64
	row := c.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE expires_at <= now()), coalesce(sum(hit_count), 0)
		FROM plan_cache`)
	if err := row.Scan(&stats.Total, &stats.Expired, &totalHits); err != nil {
		return stats, fmt.Errorf("planstore: stats: %w", err)
	}
	if stats.Total > 0 {
		stats.HitRate = float64(totalHits) / float64(stats.Total)
	}

	rows, err := c.pool.Query(ctx, `
		SELECT task_signature FROM plan_cache ORDER BY hit_count DESC LIMIT 5`)
	if err != nil {
		return stats, fmt.Errorf("planstore: top entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return stats, fmt.Errorf("planstore: scan top entry: %w", err)
		}
		stats.Top = append(stats.Top, sig)
	}
	return stats, rows.Err()
}

// Refresh extends a cache entry's TTL without regenerating its plan.
func (c *PostgresCache) Refresh(ctx context.Context, taskSignature string) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE plan_cache SET expires_at = now() + $2::interval WHERE task_signature = $1`,
		taskSignature, fmt.Sprintf("%d seconds", int(c.ttl.Seconds())))
	if err != nil {
		return fmt.Errorf("planstore: refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("planstore: no cache entry for signature")
	}
	return nil
}

func scanPlan(row pgx.Row) (schemas.Plan, error) {
	var plan schemas.Plan
	var stepsRaw, expectedRaw, errHandlingRaw, validationRaw, metadataRaw []byte

	if err := row.Scan(&plan.ID, &plan.TaskSignature, &plan.Instruction, &plan.URL,
		&stepsRaw, &expectedRaw, &errHandlingRaw, &validationRaw, &metadataRaw,
		&plan.Version, &plan.IsActive); err != nil {
		return plan, err
	}
	if err := json.Unmarshal(stepsRaw, &plan.Steps); err != nil {
		return plan, fmt.Errorf("unmarshal steps: %w", err)
	}
	if len(expectedRaw) > 0 {
		if err := json.Unmarshal(expectedRaw, &plan.ExpectedResults); err != nil {
			return plan, fmt.Errorf("unmarshal expected results: %w", err)
		}
	}
	if err := json.Unmarshal(errHandlingRaw, &plan.ErrorHandling); err != nil {
		return plan, fmt.Errorf("unmarshal error handling: %w", err)
	}
	if err := json.Unmarshal(validationRaw, &plan.Validation); err != nil {
		return plan, fmt.Errorf("unmarshal validation: %w", err)
	}
	if err := json.Unmarshal(metadataRaw, &plan.Metadata); err != nil {
		return plan, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return plan, nil
}
