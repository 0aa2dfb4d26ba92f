// Package interactive implements the closed-loop planner: drive a real
// browser tab step by step, asking an LLMClient what to do next based on
// live state, until the model reports completion, the run stagnates, or the
// step budget is exhausted.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/browser/session"
	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// browserSession is the narrow surface Agent needs from a browser.Session,
// kept as an interface so the control loop can be tested without a real tab.
type browserSession interface {
	Start(ctx context.Context, opts session.StartOptions) error
	Stop()
	CaptureState(ctx context.Context) (schemas.BrowserState, error)
	ExecuteStep(ctx context.Context, step schemas.Step) schemas.StepOutcome
}

// Agent drives one browserSession through the closed control loop described
// in the interactive-agent contract.
type Agent struct {
	browser browserSession
	llm     schemas.LLMClient
	prompts *promptstore.Store
	cfg     config.InteractiveConfig
	logger  *zap.Logger
}

// NewAgent wires a browser session, an LLMClient, and a PromptStore behind
// the interactive contract.
func NewAgent(browser browserSession, llm schemas.LLMClient, prompts *promptstore.Store, cfg config.InteractiveConfig, logger *zap.Logger) *Agent {
	return &Agent{browser: browser, llm: llm, prompts: prompts, cfg: cfg, logger: logger.Named("interactive.agent")}
}

// actionResponse is the shape the model is asked to emit each step.
type actionResponse struct {
	Action   schemas.Step               `json:"action"`
	Progress schemas.ProgressEvaluation `json:"progress"`
	Reasoning string                    `json:"reasoning"`
}

func defaultAction() actionResponse {
	return actionResponse{
		Action:   schemas.Step{ID: "fallback", Type: schemas.StepWait, Description: "fallback wait", WaitTime: 1000},
		Progress: schemas.ProgressEvaluation{Score: 0, IsComplete: false},
	}
}

// ExecuteInteractively runs the control loop for one TaskInput to completion,
// stagnation, or step-budget exhaustion, and promotes a successful trace to
// a replayable Plan.
func (a *Agent) ExecuteInteractively(ctx context.Context, input schemas.TaskInput) schemas.InteractiveResult {
	start := time.Now()
	opts := input.Opts()

	startOpts := session.StartOptions{Viewport: opts.Viewport, UserAgent: opts.UserAgent, Headers: opts.Headers, DefaultTimeoutMs: opts.TimeoutMs}
	if err := a.browser.Start(ctx, startOpts); err != nil {
		return schemas.InteractiveResult{
			Success:          false,
			EscalatedToHuman: true,
			EscalationReason: fmt.Sprintf("browser start failed: %v", err),
			TotalDurationMs:  time.Since(start).Milliseconds(),
		}
	}
	defer a.browser.Stop()

	maxSteps := a.cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	stagnationLimit := a.cfg.StagnationLimit
	if stagnationLimit <= 0 {
		stagnationLimit = 3
	}
	progressThreshold := a.cfg.ProgressThreshold
	if progressThreshold <= 0 {
		progressThreshold = 0.10
	}

	var steps []schemas.InteractiveStep
	var scores []float64
	extracted := map[string]interface{}{}
	var usage schemas.TokenUsage
	escalated := false
	escalationReason := ""
	success := false

	for stepNumber := 1; stepNumber <= maxSteps; stepNumber++ {
		if err := ctx.Err(); err != nil {
			escalated = true
			escalationReason = "context cancelled: " + err.Error()
			break
		}

		state, captureErr := a.browser.CaptureState(ctx)
		if captureErr != nil {
			state.Error = captureErr.Error()
		}

		previous := summarizeSteps(steps)
		userMessage := a.prompts.RenderInteractiveStep(input.Instruction, state, previous)
		messages := []schemas.Message{
			{Role: schemas.RoleSystem, Content: a.prompts.RenderSystem(input.URL)},
			{Role: schemas.RoleUser, Content: userMessage},
		}

		completion, err := a.llm.Complete(ctx, messages, schemas.CompletionOptions{JSONMode: true, Temperature: 0.7})
		var resp actionResponse
		if err != nil {
			a.logger.Warn("interactive llm call failed, falling back to wait", zap.Error(err))
			resp = defaultAction()
		} else {
			usage.PromptTokens += completion.Usage.PromptTokens
			usage.CompletionTokens += completion.Usage.CompletionTokens
			usage.TotalTokens += completion.Usage.TotalTokens
			parsed, parseErr := parseActionResponse(completion.Content)
			if parseErr != nil {
				a.logger.Warn("interactive llm response malformed, falling back to wait", zap.Error(parseErr))
				resp = defaultAction()
			} else {
				resp = parsed
			}
		}
		if resp.Action.ID == "" {
			resp.Action.ID = fmt.Sprintf("step-%d", stepNumber)
		}

		stepStart := time.Now()
		outcome := a.browser.ExecuteStep(ctx, resp.Action)
		durationMs := time.Since(stepStart).Milliseconds()

		execResult := schemas.StepExecutionResult{
			Success:    outcome.Success,
			Result:     outcome.Extracted,
			Error:      outcome.Error,
			DurationMs: durationMs,
		}

		if outcome.Success && resp.Action.Type == schemas.StepExtract {
			mergeParsedFields(extracted, input.Instruction, outcome.Extracted)
		}

		record := schemas.InteractiveStep{
			StepNumber:      stepNumber,
			BrowserState:    state,
			Action:          resp.Action,
			ExecutionResult: execResult,
			ProgressScore:   clampScore(resp.Progress.Score),
			IsComplete:      resp.Progress.IsComplete,
			Reasoning:       resp.Reasoning,
		}
		steps = append(steps, record)
		scores = append(scores, record.ProgressScore)

		if record.IsComplete {
			success = true
			break
		}

		if stagnated(scores, stagnationLimit, progressThreshold) {
			escalated = true
			recent := scores[len(scores)-stagnationLimit:]
			escalationReason = fmt.Sprintf("stagnation detected: last %d progress scores %v span < %.2f", stagnationLimit, recent, progressThreshold)
			break
		}
	}

	if !success && !escalated {
		escalated = true
		escalationReason = "max steps reached"
	}

	var generatedPlan *schemas.Plan
	if success && !escalated {
		p := promoteTrace(steps, input.Instruction, input.URL)
		generatedPlan = &p
	}

	progressImprovement := 0.0
	if len(scores) > 0 {
		progressImprovement = scores[len(scores)-1] - scores[0]
	}
	avg := 0.0
	for _, s := range scores {
		avg += s
	}
	if len(scores) > 0 {
		avg /= float64(len(scores))
	}

	return schemas.InteractiveResult{
		Success:             success,
		Steps:               steps,
		GeneratedPlan:       generatedPlan,
		EscalatedToHuman:    escalated,
		EscalationReason:    escalationReason,
		ProgressImprovement: progressImprovement,
		TotalDurationMs:     time.Since(start).Milliseconds(),
		ExtractedData:       extracted,
		Usage:               usage,
		Metadata: schemas.InteractiveMetadata{
			MaxStepsReached:      !success && len(steps) >= maxSteps,
			StagnationDetected:   escalated && strings.Contains(escalationReason, "stagnation"),
			AverageProgressScore: avg,
		},
	}
}

// parseActionResponse unmarshals the model's JSON-mode reply, stripping
// markdown code fences defensively like PlanGenerator does.
func parseActionResponse(content string) (actionResponse, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var resp actionResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return actionResponse{}, fmt.Errorf("interactive: unmarshal action response: %w", err)
	}
	if resp.Action.Type == "" {
		return actionResponse{}, fmt.Errorf("interactive: response missing action")
	}
	return resp, nil
}

// summarizeSteps renders the previous-steps summary line format the
// interactive-step prompt expects.
func summarizeSteps(steps []schemas.InteractiveStep) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "Step %d: %s %s – Progress: %.2f – %s\n", s.StepNumber, s.Action.Type, s.Action.Selector, s.ProgressScore, s.Reasoning)
	}
	return strings.TrimRight(b.String(), "\n")
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// stagnated reports whether the trailing stagnationLimit scores span less
// than progressThreshold. It cannot fire before that many scores exist.
func stagnated(scores []float64, limit int, threshold float64) bool {
	if len(scores) < limit {
		return false
	}
	window := scores[len(scores)-limit:]
	min, max := window[0], window[0]
	for _, s := range window {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return max-min < threshold
}
