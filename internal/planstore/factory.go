package planstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/store"
)

// New selects the Postgres-backed cache when DatabaseConfig.URL is set,
// otherwise falls back to the in-memory cache, per spec §6.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (Cache, *pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		logger.Info("no database configured, using in-memory plan cache")
		return NewMemoryCache(cfg.Cache.TTLDays), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("planstore: connect to database: %w", err)
	}

	if _, err := store.New(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("planstore: apply schema: %w", err)
	}

	return NewPostgresCache(pool, cfg.Cache.TTLDays, logger), pool, nil
}
