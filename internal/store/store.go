// Package store persists task execution records: runs, generated plans, the
// plan cache, and the monitoring/change-detection history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// schema is run idempotently at New so the binary never depends on an
// out-of-band migration tool, matching the teacher's embedded-DDL habit.
const schema = `
CREATE TABLE IF NOT EXISTS task (
	id            TEXT PRIMARY KEY,
	creator_id    TEXT NOT NULL,
	name          TEXT NOT NULL,
	instruction   TEXT NOT NULL,
	url           TEXT NOT NULL,
	cron          TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	next_run_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_run_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS execution_plans (
	id               TEXT PRIMARY KEY,
	task_signature   TEXT NOT NULL,
	instruction      TEXT NOT NULL,
	url              TEXT NOT NULL,
	steps            JSONB NOT NULL,
	expected_results JSONB,
	error_handling   JSONB NOT NULL,
	validation       JSONB NOT NULL,
	metadata         JSONB NOT NULL,
	version          INT NOT NULL DEFAULT 1,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS plan_cache (
	cache_key      TEXT PRIMARY KEY,
	task_signature TEXT UNIQUE NOT NULL,
	plan_id        TEXT NOT NULL REFERENCES execution_plans(id),
	hit_count      BIGINT NOT NULL DEFAULT 0,
	last_used_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_results (
	id               BIGSERIAL PRIMARY KEY,
	plan_id          TEXT NOT NULL,
	task_id          TEXT,
	status           TEXT NOT NULL,
	extracted_data   JSONB,
	screenshots      JSONB,
	logs             JSONB NOT NULL,
	error            JSONB,
	metrics          JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS monitoring_data (
	id              BIGSERIAL PRIMARY KEY,
	task_id         TEXT NOT NULL,
	url             TEXT NOT NULL,
	extracted_data  JSONB NOT NULL,
	execution_id    TEXT,
	captured_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS change_detections (
	id              BIGSERIAL PRIMARY KEY,
	task_id         TEXT NOT NULL,
	execution_id    TEXT,
	changed_fields  JSONB NOT NULL,
	is_restock      BOOLEAN NOT NULL DEFAULT FALSE,
	change_details  JSONB,
	detected_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_monitoring_data_task_id ON monitoring_data (task_id, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_task_due ON task (is_active, next_run_at);
`

// Store is the Postgres-backed implementation shared by the plan cache,
// the monitoring store, and the execution-result writer.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New verifies connectivity and applies the schema.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// SaveExecutionResult persists one ExecutionResult row.
func (s *Store) SaveExecutionResult(ctx context.Context, result schemas.ExecutionResult) error {
	var extracted, screenshots, execErr []byte
	var err error
	if len(result.ExtractedData) > 0 {
		if extracted, err = json.Marshal(result.ExtractedData); err != nil {
			return fmt.Errorf("store: marshal extracted data: %w", err)
		}
	}
	if len(result.Screenshots) > 0 {
		if screenshots, err = json.Marshal(result.Screenshots); err != nil {
			return fmt.Errorf("store: marshal screenshots: %w", err)
		}
	}
	if result.Error != nil {
		if execErr, err = json.Marshal(result.Error); err != nil {
			return fmt.Errorf("store: marshal execution error: %w", err)
		}
	}
	logs, err := json.Marshal(result.Logs)
	if err != nil {
		return fmt.Errorf("store: marshal logs: %w", err)
	}
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("store: marshal metrics: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_results (plan_id, task_id, status, extracted_data, screenshots, logs, error, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.PlanID, nullableString(result.TaskID), string(result.Status),
		extracted, screenshots, logs, execErr, metrics, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert execution result: %w", err)
	}
	return nil
}

// SaveMonitoringSample appends one observation to monitoring_data.
func (s *Store) SaveMonitoringSample(ctx context.Context, sample schemas.MonitoringSample) error {
	data, err := json.Marshal(sample.ExtractedData)
	if err != nil {
		return fmt.Errorf("store: marshal extracted data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO monitoring_data (task_id, url, extracted_data, execution_id, captured_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sample.TaskID, sample.URL, data, nullableString(sample.ExecutionID), sample.CapturedAt)
	if err != nil {
		return fmt.Errorf("store: insert monitoring sample: %w", err)
	}
	return nil
}

// LatestMonitoringSample returns the task's most recently captured sample,
// or (nil, nil) when this is the task's first observation.
func (s *Store) LatestMonitoringSample(ctx context.Context, taskID string) (*schemas.MonitoringSample, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT task_id, url, extracted_data, execution_id, captured_at
		FROM monitoring_data
		WHERE task_id = $1
		ORDER BY captured_at DESC
		LIMIT 1`, taskID)

	var sample schemas.MonitoringSample
	var raw []byte
	var executionID *string
	if err := row.Scan(&sample.TaskID, &sample.URL, &raw, &executionID, &sample.CapturedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: query latest monitoring sample: %w", err)
	}
	if executionID != nil {
		sample.ExecutionID = *executionID
	}
	if err := json.Unmarshal(raw, &sample.ExtractedData); err != nil {
		return nil, fmt.Errorf("store: unmarshal extracted data: %w", err)
	}
	return &sample, nil
}

// SaveChangeDetection persists one ChangeDetector verdict.
func (s *Store) SaveChangeDetection(ctx context.Context, change schemas.ChangeRecord) error {
	fields, err := json.Marshal(change.ChangedFields)
	if err != nil {
		return fmt.Errorf("store: marshal changed fields: %w", err)
	}
	var details []byte
	if len(change.ChangeDetails) > 0 {
		details, err = json.Marshal(change.ChangeDetails)
		if err != nil {
			return fmt.Errorf("store: marshal change details: %w", err)
		}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO change_detections (task_id, execution_id, changed_fields, is_restock, change_details, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		change.TaskID, nullableString(change.ExecutionID), fields, change.IsRestock, details, change.DetectedAt)
	if err != nil {
		return fmt.Errorf("store: insert change detection: %w", err)
	}
	return nil
}

// ListDueTasks returns active task rows whose next_run_at has arrived,
// oldest-due first, capped at limit.
func (s *Store) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]schemas.ScheduledTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, creator_id, name, instruction, url, cron, is_active, next_run_at, last_run_at
		FROM task
		WHERE is_active = TRUE AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []schemas.ScheduledTask
	for rows.Next() {
		var t schemas.ScheduledTask
		var lastRun *time.Time
		if err := rows.Scan(&t.ID, &t.CreatorID, &t.Name, &t.Instruction, &t.URL, &t.Cron, &t.IsActive, &t.NextRunAt, &lastRun); err != nil {
			return nil, fmt.Errorf("store: scan due task: %w", err)
		}
		if lastRun != nil {
			t.LastRunAt = *lastRun
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate due tasks: %w", err)
	}
	return tasks, nil
}

// MarkTaskRan stamps last_run_at and advances next_run_at after one poll
// cycle has dispatched a task. Cron-expression evaluation is an external
// collaborator's responsibility; absent a finer schedule this engine simply
// reschedules one poll interval out so an active task keeps being picked up.
func (s *Store) MarkTaskRan(ctx context.Context, taskID string, ranAt time.Time, nextRunAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE task SET last_run_at = $1, next_run_at = $2 WHERE id = $3`,
		ranAt, nextRunAt, taskID)
	if err != nil {
		return fmt.Errorf("store: mark task ran: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
