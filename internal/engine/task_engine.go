// Package engine runs the serve subcommand's worker pool: a rate-limited
// poll of due ScheduledTask rows, each dispatched to the Orchestrator inside
// a bounded goroutine pool.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/orchestrator"
	"github.com/watchloom/pagewatch/internal/schemas"
)

const defaultTaskTimeout = 60 * time.Second

// TaskSource is the task table's polling surface.
type TaskSource interface {
	ListDueTasks(ctx context.Context, now time.Time, limit int) ([]schemas.ScheduledTask, error)
	MarkTaskRan(ctx context.Context, taskID string, ranAt, nextRunAt time.Time) error
}

// TaskHandler is the orchestrator's contract as the engine consumes it.
type TaskHandler interface {
	Handle(ctx context.Context, input schemas.TaskInput) (orchestrator.Result, error)
}

// Engine manages the in-process distribution of due tasks to a bounded pool
// of goroutines.
type Engine struct {
	cfg     config.EngineConfig
	logger  *zap.Logger
	source  TaskSource
	handler TaskHandler
	limiter *rate.Limiter
	sem     chan struct{}
	wg      sync.WaitGroup

	stateLock sync.Mutex
	isRunning bool
}

// New validates dependencies and returns an Engine ready for Run.
func New(cfg config.EngineConfig, logger *zap.Logger, source TaskSource, handler TaskHandler) (*Engine, error) {
	if logger == nil {
		return nil, &initError{"logger cannot be nil"}
	}
	if source == nil {
		return nil, &initError{"task source cannot be nil"}
	}
	if handler == nil {
		return nil, &initError{"task handler cannot be nil"}
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	cfg.WorkerConcurrency = concurrency
	cfg.PollInterval = pollInterval

	return &Engine{
		cfg:     cfg,
		logger:  logger.Named("engine"),
		source:  source,
		handler: handler,
		limiter: rate.NewLimiter(rate.Every(pollInterval), 1),
		sem:     make(chan struct{}, concurrency),
	}, nil
}

type initError struct{ msg string }

func (e *initError) Error() string { return "engine: " + e.msg }

// Run polls for due tasks on cfg.PollInterval, rate-limited so a slow
// database never gets hammered by a catch-up burst, until ctx is canceled.
// It blocks until every in-flight task has finished.
func (e *Engine) Run(ctx context.Context) {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		e.logger.Warn("Run called while engine already running")
		return
	}
	e.isRunning = true
	e.stateLock.Unlock()
	defer func() {
		e.stateLock.Lock()
		e.isRunning = false
		e.stateLock.Unlock()
	}()

	e.logger.Info("starting serve loop",
		zap.Int("concurrency", e.cfg.WorkerConcurrency),
		zap.Duration("poll_interval", e.cfg.PollInterval))

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("serve loop shutting down, draining in-flight tasks")
			e.wg.Wait()
			return
		case <-ticker.C:
			if err := e.limiter.Wait(ctx); err != nil {
				e.wg.Wait()
				return
			}
			e.pollOnce(ctx)
		}
	}
}

// pollOnce fetches one batch of due tasks and dispatches each to the
// bounded worker pool via sem, blocking the poll loop (not the tasks
// already running) once concurrency is saturated.
func (e *Engine) pollOnce(ctx context.Context) {
	due, err := e.source.ListDueTasks(ctx, time.Now(), e.cfg.QueueSize)
	if err != nil {
		e.logger.Error("failed to list due tasks", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	e.logger.Info("dispatching due tasks", zap.Int("count", len(due)))

	for _, task := range due {
		task := task
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.runTask(ctx, task)
		}()
	}
}

// runTask drives one ScheduledTask through the Orchestrator under a
// per-task timeout, recovering a panic so one bad task never brings down
// the worker pool, then reschedules the task's next_run_at.
func (e *Engine) runTask(ctx context.Context, task schemas.ScheduledTask) {
	logger := e.logger.With(zap.String("task_id", task.ID), zap.String("url", task.URL))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked, recovering", zap.Any("panic", r))
		}
		e.markTaskRan(logger, task)
	}()

	timeout := e.cfg.DefaultTaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.handler.Handle(taskCtx, task.ToTaskInput())
	if err != nil {
		logger.Error("task handling failed", zap.Error(err))
	} else if !result.Success {
		logger.Warn("task completed without success", zap.String("status", string(result.Status)))
	} else {
		logger.Info("task completed", zap.Int("extracted_fields", len(result.ExtractedData)))
	}
}

// markTaskRan reschedules next_run_at and records the run. Called from
// runTask's deferred recover so it fires on every exit path, including a
// panic or a timed-out Handle call.
func (e *Engine) markTaskRan(logger *zap.Logger, task schemas.ScheduledTask) {
	ranAt := time.Now().UTC()
	markCtx, markCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer markCancel()
	if err := e.source.MarkTaskRan(markCtx, task.ID, ranAt, ranAt.Add(e.cfg.PollInterval)); err != nil {
		logger.Warn("failed to mark task ran", zap.Error(err))
	}
}
