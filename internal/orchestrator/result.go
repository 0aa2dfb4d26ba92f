package orchestrator

import "github.com/watchloom/pagewatch/internal/schemas"

// Result is the orchestrator's mode-shaped response. The run command prints
// it as JSON as is; no LambdaResponse envelope (status code, headers) is
// built around it.
type Result struct {
	Success       bool                    `json:"success"`
	Mode          string                  `json:"mode,omitempty"`
	PlanID        string                  `json:"planId,omitempty"`
	TaskSignature string                  `json:"taskSignature,omitempty"`
	ExecutionID   string                  `json:"executionId,omitempty"`
	Status        schemas.ExecutionStatus `json:"status,omitempty"`
	ExtractedData map[string]interface{}  `json:"extractedData,omitempty"`
	Screenshots   int                     `json:"screenshots,omitempty"`

	InteractiveSteps []InteractiveStepSummary `json:"interactiveSteps,omitempty"`
	PlanDetails      *PlanDetails             `json:"planDetails,omitempty"`

	Metrics    Metrics                 `json:"metrics"`
	Escalation *Escalation             `json:"escalation,omitempty"`
	Logs       []string                `json:"logs,omitempty"`
	Error      *schemas.ExecutionError `json:"error,omitempty"`

	ExecutionTime int64  `json:"executionTime,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Metrics is a union of the metrics fields across all three response shapes;
// each mode populates only the subset it defines.
type Metrics struct {
	ExecutionTimeMs      int64   `json:"executionTimeMs,omitempty"`
	TotalTimeMs          int64   `json:"totalTime,omitempty"`
	StepsCompleted       int     `json:"stepsCompleted,omitempty"`
	StepsTotal           int     `json:"stepsTotal,omitempty"`
	RetryCount           int     `json:"retryCount,omitempty"`
	AverageProgressScore float64 `json:"averageProgressScore,omitempty"`
	MaxStepsReached      bool    `json:"maxStepsReached,omitempty"`
	StagnationDetected   bool    `json:"stagnationDetected,omitempty"`
	PlanGenerated        bool    `json:"planGenerated,omitempty"`
	CacheHit             bool    `json:"cacheHit"`
}

// Escalation reports whether the interactive loop gave up on a task and why.
type Escalation struct {
	Escalated bool   `json:"escalated"`
	Reason    string `json:"reason,omitempty"`
}

// InteractiveStepSummary is the caller-facing projection of one InteractiveStep.
type InteractiveStepSummary struct {
	StepNumber    int          `json:"stepNumber"`
	Action        schemas.Step `json:"action"`
	ProgressScore float64      `json:"progressScore"`
	IsComplete    bool         `json:"isComplete"`
	Reasoning     string       `json:"reasoning"`
}

// PlanDetails is the plan-only mode's summary of a generated/cached plan.
type PlanDetails struct {
	Steps             []PlanStepSummary `json:"steps"`
	EstimatedDuration int               `json:"estimatedDuration"`
	Confidence        float64           `json:"confidence"`
	Reasoning         string            `json:"reasoning"`
}

// PlanStepSummary is one step's caller-facing projection within PlanDetails.
type PlanStepSummary struct {
	ID          string          `json:"id"`
	Type        schemas.StepType `json:"type"`
	Description string          `json:"description"`
	Selector    string          `json:"selector,omitempty"`
}

func summarizeSteps(p schemas.Plan) []PlanStepSummary {
	out := make([]PlanStepSummary, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, PlanStepSummary{ID: s.ID, Type: s.Type, Description: s.Description, Selector: s.Selector})
	}
	return out
}

func summarizeInteractiveSteps(steps []schemas.InteractiveStep) []InteractiveStepSummary {
	out := make([]InteractiveStepSummary, 0, len(steps))
	for _, s := range steps {
		out = append(out, InteractiveStepSummary{
			StepNumber:    s.StepNumber,
			Action:        s.Action,
			ProgressScore: s.ProgressScore,
			IsComplete:    s.IsComplete,
			Reasoning:     s.Reasoning,
		})
	}
	return out
}
