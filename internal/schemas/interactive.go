package schemas

import "time"

// BrowserState is one captured snapshot of the page under observation.
type BrowserState struct {
	URL        string    `json:"url"`
	DOM        string    `json:"dom"`
	Screenshot string    `json:"screenshot,omitempty"`
	Viewport   Viewport  `json:"viewport"`
	CapturedAt time.Time `json:"capturedAt"`
	Error      string    `json:"error,omitempty"`
}

// StepOutcome is the raw result of one BrowserSession.ExecuteStep call,
// before retry/optional-step policy is applied by the caller.
type StepOutcome struct {
	Success   bool        `json:"success"`
	Extracted interface{} `json:"extracted,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// StepExecutionResult is the outcome of running a single action in the loop.
type StepExecutionResult struct {
	Success    bool        `json:"success"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"durationMs"`
}

// ProgressEvaluation is the model's self-reported completion estimate.
type ProgressEvaluation struct {
	Score      float64 `json:"score"`
	IsComplete bool    `json:"isComplete"`
}

// InteractiveStep is one recorded iteration of the closed interactive loop.
type InteractiveStep struct {
	StepNumber      int                 `json:"stepNumber"`
	BrowserState    BrowserState        `json:"browserState"`
	Action          Step                `json:"action"`
	ExecutionResult StepExecutionResult `json:"executionResult"`
	ProgressScore   float64             `json:"progressScore"`
	IsComplete      bool                `json:"isComplete"`
	Reasoning       string              `json:"reasoning"`
}

// InteractiveMetadata reports loop-level bookkeeping for an interactive run.
type InteractiveMetadata struct {
	MaxStepsReached      bool    `json:"maxStepsReached"`
	StagnationDetected   bool    `json:"stagnationDetected"`
	AverageProgressScore float64 `json:"averageProgressScore"`
}

// TokenUsage mirrors an LLMClient's reported usage for one call.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// InteractiveResult is the return value of InteractiveAgent.ExecuteInteractively.
type InteractiveResult struct {
	Success             bool               `json:"success"`
	Steps               []InteractiveStep  `json:"steps"`
	GeneratedPlan       *Plan              `json:"generatedPlan,omitempty"`
	EscalatedToHuman    bool               `json:"escalatedToHuman"`
	EscalationReason    string             `json:"escalationReason,omitempty"`
	ProgressImprovement float64            `json:"progressImprovement"`
	TotalDurationMs     int64              `json:"totalDurationMs"`
	ExtractedData       map[string]interface{} `json:"extractedData,omitempty"`
	Usage               TokenUsage         `json:"usage"`
	Metadata            InteractiveMetadata `json:"metadata"`
}
