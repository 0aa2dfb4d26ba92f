// Package schemas holds the shared data types that flow between the
// orchestrator, the browser session, the LLM clients, and the persistence
// layer. Keeping them in one leaf package avoids import cycles between the
// components that all need to agree on these shapes.
package schemas

import "time"

// ExecutionMode selects how the orchestrator resolves a TaskInput into steps.
type ExecutionMode string

const (
	ModePlan        ExecutionMode = "plan"
	ModeInteractive ExecutionMode = "interactive"
	ModeAuto        ExecutionMode = "auto"
)

// Viewport describes a browser viewport size in device pixels.
type Viewport struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// TaskOptions is the fully enumerated option bag on a TaskInput.
type TaskOptions struct {
	ExecutionMode     ExecutionMode     `json:"executionMode,omitempty"`
	PlanOnly          bool              `json:"planOnly,omitempty"`
	ExecutionOnly     bool              `json:"executionOnly,omitempty"`
	PlanID            string            `json:"planId,omitempty"`
	ForceNewPlan      bool              `json:"forceNewPlan,omitempty"`
	TimeoutMs         int               `json:"timeoutMs,omitempty"`
	ScreenshotEnabled bool              `json:"screenshotEnabled,omitempty"`
	Viewport          *Viewport         `json:"viewport,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
}

// TaskInput is the single structure the core consumes per invocation.
type TaskInput struct {
	Instruction string       `json:"instruction"`
	URL         string       `json:"url"`
	TaskID      string       `json:"taskId,omitempty"`
	Options     *TaskOptions `json:"options,omitempty"`
}

// Opts returns a non-nil options bag, defaulting execution mode to interactive
// per spec.md §3.
func (t *TaskInput) Opts() TaskOptions {
	if t.Options == nil {
		return TaskOptions{ExecutionMode: ModeInteractive}
	}
	o := *t.Options
	if o.ExecutionMode == "" {
		o.ExecutionMode = ModeInteractive
	}
	return o
}

// ExecutionStatus is the terminal state of an ExecutionResult.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusTimeout ExecutionStatus = "timeout"
	StatusError   ExecutionStatus = "error"
)

// ExecutionError carries the structured error attached to a failed result.
type ExecutionError struct {
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// ExecutionMetrics summarizes one replay/execution.
type ExecutionMetrics struct {
	ExecutionTimeMs int `json:"executionTimeMs"`
	StepsCompleted  int `json:"stepsCompleted"`
	StepsTotal      int `json:"stepsTotal"`
	RetryCount      int `json:"retryCount"`
}

// ExecutionResult is the outcome of replaying or executing a Plan.
type ExecutionResult struct {
	PlanID        string                 `json:"planId"`
	TaskID        string                 `json:"taskId,omitempty"`
	Status        ExecutionStatus        `json:"status"`
	ExtractedData map[string]interface{} `json:"extractedData,omitempty"`
	Screenshots   []string               `json:"screenshots,omitempty"`
	Logs          []string               `json:"logs"`
	Error         *ExecutionError        `json:"error,omitempty"`
	Metrics       ExecutionMetrics       `json:"metrics"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// MonitoringSample is one persisted successful extraction for a task.
type MonitoringSample struct {
	TaskID        string                 `json:"taskId"`
	URL           string                 `json:"url"`
	ExtractedData map[string]interface{} `json:"extractedData"`
	ExecutionID   string                 `json:"executionId,omitempty"`
	CapturedAt    time.Time              `json:"capturedAt"`
}

// ChangeRecord is one detected difference between two successive samples.
type ChangeRecord struct {
	TaskID        string                 `json:"taskId"`
	ExecutionID   string                 `json:"executionId,omitempty"`
	ChangedFields []string               `json:"changedFields"`
	IsRestock     bool                   `json:"isRestock"`
	ChangeDetails map[string]interface{} `json:"changeDetails,omitempty"`
	DetectedAt    time.Time              `json:"detectedAt"`
}

// ChangeVerdict is ChangeDetector's return value before it is persisted as a
// ChangeRecord. IsFirstExecution is true only when no prior sample existed.
type ChangeVerdict struct {
	Changed          bool
	ChangedFields    []string
	IsRestock        bool
	ChangeDetails    map[string]interface{}
	IsFirstExecution bool
	DetectedAt       time.Time
}
