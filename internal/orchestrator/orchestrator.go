// Package orchestrator implements the per-task entry point: mode routing
// across cached replay, the interactive loop, and one-shot plan generation,
// failure-driven regeneration, and post-execution persistence.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/apierr"
	"github.com/watchloom/pagewatch/internal/browser/session"
	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/interactive"
	"github.com/watchloom/pagewatch/internal/plan"
	"github.com/watchloom/pagewatch/internal/planstore"
	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/schemas"
)

const defaultTaskTimeoutMs = 60000

// BrowserSession is the narrow surface the orchestrator drives: replay via
// Execute, one-step drive via ExecuteStep/CaptureState for the interactive
// agent, and PageText for regeneration context.
type BrowserSession interface {
	Start(ctx context.Context, opts session.StartOptions) error
	Stop()
	Execute(ctx context.Context, p schemas.Plan, opts session.ExecuteOptions) schemas.ExecutionResult
	ExecuteStep(ctx context.Context, step schemas.Step) schemas.StepOutcome
	CaptureState(ctx context.Context) (schemas.BrowserState, error)
	PageText(ctx context.Context) (string, error)
}

// ResultStore persists the orchestrator's post-execution records.
type ResultStore interface {
	SaveExecutionResult(ctx context.Context, result schemas.ExecutionResult) error
}

// MonitoringRecorder persists extraction samples and runs the change detector.
type MonitoringRecorder interface {
	Record(ctx context.Context, taskID, url string, extracted map[string]interface{}, executionID string) (schemas.ChangeVerdict, error)
}

// Generator is PlanGenerator's contract as the orchestrator consumes it.
type Generator interface {
	GeneratePlanWithFallback(ctx context.Context, instruction, url, pageText string, fallback schemas.LLMClient) plan.Result
}

// Orchestrator is constructed with every dependency injected as an
// interface so tests can fake the browser, LLM, and persistence layers
// independently of each other.
type Orchestrator struct {
	cfg            *config.Config
	logger         *zap.Logger
	cache          planstore.Cache
	newSession     func() BrowserSession
	generator      Generator
	primaryLLM     schemas.LLMClient
	fallbackLLM    schemas.LLMClient
	prompts        *promptstore.Store
	resultStore    ResultStore
	monitoring     MonitoringRecorder
	interactiveCfg config.InteractiveConfig
}

// New wires the orchestrator's dependencies. resultStore, monitoring, and
// fallbackLLM may be nil: persistence and regeneration fallback are then
// skipped, matching the in-memory/no-DB deployment mode.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	cache planstore.Cache,
	newSession func() BrowserSession,
	generator Generator,
	primaryLLM schemas.LLMClient,
	fallbackLLM schemas.LLMClient,
	prompts *promptstore.Store,
	resultStore ResultStore,
	monitoring MonitoringRecorder,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || cache == nil || newSession == nil || generator == nil || primaryLLM == nil || prompts == nil {
		return nil, fmt.Errorf("orchestrator: cannot initialize with nil required dependencies")
	}
	return &Orchestrator{
		cfg:            cfg,
		logger:         logger.Named("orchestrator"),
		cache:          cache,
		newSession:     newSession,
		generator:      generator,
		primaryLLM:     primaryLLM,
		fallbackLLM:    fallbackLLM,
		prompts:        prompts,
		resultStore:    resultStore,
		monitoring:     monitoring,
		interactiveCfg: cfg.Interactive,
	}, nil
}

// Handle resolves one TaskInput per the mode-routing contract and returns
// the mode-shaped Result.
func (o *Orchestrator) Handle(ctx context.Context, input schemas.TaskInput) (Result, error) {
	opts := input.Opts()
	if opts.PlanOnly && opts.ExecutionOnly {
		return Result{}, apierr.ValidationError{Field: "options", Message: "planOnly and executionOnly are mutually exclusive"}
	}

	timeoutMs := opts.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTaskTimeoutMs
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	taskSignature := schemas.TaskSignature(input.Instruction, input.URL)

	if opts.PlanOnly {
		return o.handlePlanOnly(ctx, input, opts, taskSignature)
	}
	if opts.ExecutionOnly {
		return o.handleExecutionOnly(ctx, input, opts, taskSignature)
	}

	cached, _ := o.cache.Get(ctx, taskSignature)
	mode := opts.ExecutionMode

	if cached != nil && (mode == schemas.ModeInteractive || mode == schemas.ModeAuto) {
		return o.replay(ctx, input, opts, *cached, true)
	}

	if mode == schemas.ModeInteractive || mode == schemas.ModeAuto {
		interactiveResult := o.runInteractive(ctx, input)
		if interactiveResult.Success {
			if interactiveResult.GeneratedPlan != nil {
				if err := o.cache.Put(ctx, *interactiveResult.GeneratedPlan); err != nil {
					o.logger.Warn("failed to cache promoted plan", zap.Error(err))
				}
			}
			return o.buildInteractiveResponse(interactiveResult), nil
		}
		if mode == schemas.ModeInteractive {
			return o.buildInteractiveResponse(interactiveResult), nil
		}
		// mode == auto: interactive loop escalated, fall through to plan mode.
	}

	return o.runPlanMode(ctx, input, opts, taskSignature)
}

// handlePlanOnly generates (or reuses a cached) Plan, caches it, and returns
// without ever touching the browser.
func (o *Orchestrator) handlePlanOnly(ctx context.Context, input schemas.TaskInput, opts schemas.TaskOptions, taskSignature string) (Result, error) {
	start := time.Now()

	var p *schemas.Plan
	cacheHit := false
	if !opts.ForceNewPlan {
		if cached, _ := o.cache.Get(ctx, taskSignature); cached != nil {
			p = cached
			cacheHit = true
		}
	}
	if p == nil {
		genResult := o.generator.GeneratePlanWithFallback(ctx, input.Instruction, input.URL, "", o.fallbackLLM)
		if genResult.Plan == nil {
			return Result{}, apierr.PlanGenerationError{Reason: genResult.Error}
		}
		p = genResult.Plan
		if err := o.cache.Put(ctx, *p); err != nil {
			o.logger.Warn("failed to cache generated plan", zap.Error(err))
		}
	}

	return Result{
		Success:       true,
		Mode:          "plan_only",
		PlanID:        p.ID,
		TaskSignature: p.TaskSignature,
		PlanDetails: &PlanDetails{
			Steps:             summarizeSteps(*p),
			EstimatedDuration: p.Metadata.EstimatedDurationMs,
			Confidence:        p.Metadata.Confidence,
		},
		ExecutionTime: time.Since(start).Milliseconds(),
		Message:       "plan generated",
		Metrics:       Metrics{CacheHit: cacheHit},
	}, nil
}

// handleExecutionOnly replays an existing plan (by planId or taskSignature)
// without ever invoking plan generation.
func (o *Orchestrator) handleExecutionOnly(ctx context.Context, input schemas.TaskInput, opts schemas.TaskOptions, taskSignature string) (Result, error) {
	var p *schemas.Plan
	var err error
	if opts.PlanID != "" {
		p, err = o.cache.GetByID(ctx, opts.PlanID)
	} else {
		p, err = o.cache.Get(ctx, taskSignature)
	}
	if err != nil {
		o.logger.Warn("execution-only cache lookup failed", zap.Error(err))
	}
	if p == nil {
		return Result{}, fmt.Errorf("NO_CACHED_PLAN")
	}
	return o.replay(ctx, input, opts, *p, true)
}

// runPlanMode looks up (unless forceNewPlan) or generates a Plan, then
// replays it.
func (o *Orchestrator) runPlanMode(ctx context.Context, input schemas.TaskInput, opts schemas.TaskOptions, taskSignature string) (Result, error) {
	var cached *schemas.Plan
	if !opts.ForceNewPlan {
		cached, _ = o.cache.Get(ctx, taskSignature)
	}

	cacheHit := cached != nil
	planGenerated := false
	p := cached
	if p == nil {
		genResult := o.generator.GeneratePlanWithFallback(ctx, input.Instruction, input.URL, "", o.fallbackLLM)
		if genResult.Plan == nil {
			return Result{}, apierr.PlanGenerationError{Reason: genResult.Error}
		}
		p = genResult.Plan
		planGenerated = true
		if err := o.cache.Put(ctx, *p); err != nil {
			o.logger.Warn("failed to cache generated plan", zap.Error(err))
		}
	}

	res, err := o.replay(ctx, input, opts, *p, cacheHit)
	res.Metrics.PlanGenerated = planGenerated
	return res, err
}

// replay executes a Plan via a fresh BrowserSession, applies at most one
// failure-driven regeneration pass, persists the result, and records a
// monitoring sample on success.
func (o *Orchestrator) replay(ctx context.Context, input schemas.TaskInput, opts schemas.TaskOptions, p schemas.Plan, cacheHit bool) (Result, error) {
	browser := o.newSession()
	startOpts := session.StartOptions{Viewport: opts.Viewport, UserAgent: opts.UserAgent, Headers: opts.Headers, DefaultTimeoutMs: opts.TimeoutMs}
	if err := browser.Start(ctx, startOpts); err != nil {
		return Result{}, fmt.Errorf("orchestrator: browser start: %w", err)
	}
	defer browser.Stop()

	execResult := browser.Execute(ctx, p, session.ExecuteOptions{ScreenshotEnabled: opts.ScreenshotEnabled})
	regenerated := false

	if needsRegeneration(execResult) {
		pageText, _ := browser.PageText(ctx)
		genResult := o.generator.GeneratePlanWithFallback(ctx, input.Instruction, input.URL, pageText, o.fallbackLLM)
		if genResult.Plan != nil {
			newResult := browser.Execute(ctx, *genResult.Plan, session.ExecuteOptions{ScreenshotEnabled: opts.ScreenshotEnabled})
			if newResult.Status == schemas.StatusSuccess {
				if err := o.cache.Put(ctx, *genResult.Plan); err != nil {
					o.logger.Warn("failed to overwrite cache after regeneration", zap.Error(err))
				}
				p = *genResult.Plan
				execResult = newResult
				cacheHit = false
				regenerated = true
			}
		}
	}

	execResult.PlanID = p.ID
	execResult.TaskID = input.TaskID
	execResult.CreatedAt = time.Now().UTC()

	o.persist(ctx, input, execResult)

	return Result{
		Success:       execResult.Status == schemas.StatusSuccess,
		PlanID:        p.ID,
		TaskSignature: p.TaskSignature,
		Status:        execResult.Status,
		ExtractedData: execResult.ExtractedData,
		Screenshots:   len(execResult.Screenshots),
		Logs:          execResult.Logs,
		Error:         execResult.Error,
		Metrics: Metrics{
			ExecutionTimeMs: int64(execResult.Metrics.ExecutionTimeMs),
			TotalTimeMs:     int64(execResult.Metrics.ExecutionTimeMs),
			StepsCompleted:  execResult.Metrics.StepsCompleted,
			StepsTotal:      execResult.Metrics.StepsTotal,
			RetryCount:      execResult.Metrics.RetryCount,
			CacheHit:        cacheHit && !regenerated,
		},
	}, nil
}

// runInteractive constructs a fresh BrowserSession and drives the closed
// interactive loop against it using the primary LLMClient.
func (o *Orchestrator) runInteractive(ctx context.Context, input schemas.TaskInput) schemas.InteractiveResult {
	browser := o.newSession()
	agent := interactive.NewAgent(browser, o.primaryLLM, o.prompts, o.interactiveCfg, o.logger)
	return agent.ExecuteInteractively(ctx, input)
}

func (o *Orchestrator) buildInteractiveResponse(r schemas.InteractiveResult) Result {
	status := schemas.StatusFailed
	if r.Success {
		status = schemas.StatusSuccess
	}
	var planID string
	if r.GeneratedPlan != nil {
		planID = r.GeneratedPlan.ID
	}
	return Result{
		Success:          r.Success,
		Mode:             "interactive",
		PlanID:           planID,
		Status:           status,
		ExtractedData:    r.ExtractedData,
		InteractiveSteps: summarizeInteractiveSteps(r.Steps),
		Escalation:       &Escalation{Escalated: r.EscalatedToHuman, Reason: r.EscalationReason},
		Metrics: Metrics{
			TotalTimeMs:          r.TotalDurationMs,
			StepsCompleted:       len(r.Steps),
			StepsTotal:           len(r.Steps),
			AverageProgressScore: r.Metadata.AverageProgressScore,
			MaxStepsReached:      r.Metadata.MaxStepsReached,
			StagnationDetected:   r.Metadata.StagnationDetected,
		},
	}
}

// persist writes the ExecutionResult and, on a successful extraction with a
// taskId, appends a MonitoringSample and runs the change detector. Ordering
// matches spec: the ExecutionResult write happens first.
func (o *Orchestrator) persist(ctx context.Context, input schemas.TaskInput, result schemas.ExecutionResult) {
	if o.resultStore != nil {
		if err := o.resultStore.SaveExecutionResult(ctx, result); err != nil {
			o.logger.Warn("failed to persist execution result", zap.Error(err))
		}
	}
	if o.monitoring == nil {
		return
	}
	if result.Status != schemas.StatusSuccess || len(result.ExtractedData) == 0 || input.TaskID == "" {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := o.monitoring.Record(persistCtx, input.TaskID, input.URL, result.ExtractedData, result.PlanID); err != nil {
		o.logger.Warn("failed to record monitoring sample", zap.Error(err))
	}
}
