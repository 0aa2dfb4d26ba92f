package schemas

// StepType tags the union of browser action primitives a Step can carry.
type StepType string

const (
	StepNavigate        StepType = "navigate"
	StepClick           StepType = "click"
	StepInputType       StepType = "type" // identifier can't be named "type" (Go keyword); wire value is unchanged.
	StepSelect          StepType = "select"
	StepHover           StepType = "hover"
	StepKeyPress        StepType = "keyPress"
	StepScroll          StepType = "scroll"
	StepWait            StepType = "wait"
	StepWaitForSelector StepType = "waitForSelector"
	StepExtract         StepType = "extract"
	StepEvaluate        StepType = "evaluate"
	StepScreenshot      StepType = "screenshot"
	StepReload          StepType = "reload"
	StepGoBack          StepType = "goBack"
	StepGoForward       StepType = "goForward"
)

// ElementWaitState is the state waitForSelector waits for.
type ElementWaitState string

const (
	WaitAttached ElementWaitState = "attached"
	WaitVisible  ElementWaitState = "visible"
)

// ExtractKind selects what an extract step pulls from the matched element(s).
type ExtractKind string

const (
	ExtractText      ExtractKind = "text"
	ExtractHTML      ExtractKind = "html"
	ExtractValue     ExtractKind = "value"
	ExtractAttribute ExtractKind = "attribute"
)

// ScrollDirection is the named-direction form of a scroll step.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// ExtractOptions configures an extract step.
type ExtractOptions struct {
	Multiple  bool        `json:"multiple,omitempty"`
	Attribute string      `json:"attribute,omitempty"`
	Kind      ExtractKind `json:"kind,omitempty"`
}

// WaitForSelectorOptions configures a waitForSelector step.
type WaitForSelectorOptions struct {
	TimeoutMs int              `json:"timeoutMs,omitempty"`
	State     ElementWaitState `json:"state,omitempty"`
}

// ScreenshotOptions configures a screenshot step.
type ScreenshotOptions struct {
	FullPage bool `json:"fullPage,omitempty"`
}

// ScrollOptions configures a scroll step. Either X/Y or Direction is set.
type ScrollOptions struct {
	X         *int            `json:"x,omitempty"`
	Y         *int            `json:"y,omitempty"`
	Direction ScrollDirection `json:"direction,omitempty"`
}

// Step is one unit of browser action. It is a tagged union over StepType;
// only the fields relevant to Type are populated by the planner, but the
// struct carries every variant's fields so it round-trips through JSON
// without a custom (Un)MarshalJSON.
type Step struct {
	ID          string `json:"id"`
	Type        StepType `json:"type"`
	Description string `json:"description"`

	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Key      string `json:"key,omitempty"`
	Script   string `json:"script,omitempty"`

	WaitTime int `json:"waitTime,omitempty"` // used by wait(ms); waitForSelector reads WaitForSelector.TimeoutMs

	Scroll          *ScrollOptions          `json:"scrollOptions,omitempty"`
	WaitForSelector *WaitForSelectorOptions `json:"waitForSelectorOptions,omitempty"`
	Extract         *ExtractOptions         `json:"extractOptions,omitempty"`
	Screenshot      *ScreenshotOptions      `json:"screenshotOptions,omitempty"`

	Optional     bool   `json:"optional,omitempty"`
	Retries      int    `json:"retries,omitempty"`
	Condition    string `json:"condition,omitempty"`
	WaitAfterMs  int    `json:"waitAfterMs,omitempty"`
}

// ErrorHandling configures retry/timeout/fallback policy for a Plan.
type ErrorHandling struct {
	RetryCount    int    `json:"retryCount"`
	TimeoutMs     int    `json:"timeoutMs"`
	FallbackSteps []Step `json:"fallbackSteps,omitempty"`
}

// Validation holds the page-context boolean expressions checked after a replay.
type Validation struct {
	SuccessCriteria []string `json:"successCriteria"`
	FailureCriteria []string `json:"failureCriteria"`
}

// PlanMetadata carries provenance and planner confidence.
type PlanMetadata struct {
	CreatedAt           string  `json:"createdAt"`
	ModelID             string  `json:"modelId"`
	Confidence          float64 `json:"confidence"`
	EstimatedDurationMs int     `json:"estimatedDurationMs"`
}

// Plan is the replayable, validated step sequence for a (instruction, url) pair.
type Plan struct {
	ID              string        `json:"id"`
	TaskSignature   string        `json:"taskSignature"`
	Instruction     string        `json:"instruction"`
	URL             string        `json:"url"`
	Steps           []Step        `json:"steps"`
	ExpectedResults []string      `json:"expectedResults,omitempty"`
	ErrorHandling   ErrorHandling `json:"errorHandling"`
	Validation      Validation    `json:"validation"`
	Metadata        PlanMetadata  `json:"metadata"`
	Version         int           `json:"version,omitempty"`
	IsActive        bool          `json:"isActive,omitempty"`
}
