package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// validate checks every structural rule spec §4.4 names and, on success,
// returns a fully populated Plan with estimatedDurationMs computed.
func validate(s scaffold, instruction, url string) (*schemas.Plan, []string, error) {
	var warnings []string

	if len(s.Steps) == 0 {
		return nil, warnings, fmt.Errorf("plan must contain at least one step")
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		if step.ID == "" {
			return nil, warnings, fmt.Errorf("step %d missing id", i)
		}
		if step.Type == "" {
			return nil, warnings, fmt.Errorf("step %q missing type", step.ID)
		}
		if step.Description == "" {
			return nil, warnings, fmt.Errorf("step %q missing description", step.ID)
		}

		switch step.Type {
		case schemas.StepNavigate:
			if step.URL == "" {
				step.URL = url
			}
		case schemas.StepClick, schemas.StepHover:
			if step.Selector == "" {
				return nil, warnings, fmt.Errorf("step %q (%s) requires a selector", step.ID, step.Type)
			}
		case schemas.StepInputType, schemas.StepSelect:
			if step.Selector == "" || step.Value == "" {
				return nil, warnings, fmt.Errorf("step %q (%s) requires selector and value", step.ID, step.Type)
			}
		case schemas.StepExtract, schemas.StepWaitForSelector:
			if step.Selector == "" {
				return nil, warnings, fmt.Errorf("step %q (%s) requires a selector", step.ID, step.Type)
			}
		}

		if step.Type == schemas.StepWaitForSelector {
			if step.WaitForSelector == nil {
				step.WaitForSelector = &schemas.WaitForSelectorOptions{}
			}
			if step.WaitForSelector.TimeoutMs == 0 {
				step.WaitForSelector.TimeoutMs = 10000
			}
		}
		if step.Type == schemas.StepWait && step.WaitTime == 0 {
			step.WaitTime = 1000
		}

		if step.Selector != "" && !looksLikeSelector(step.Selector) {
			warnings = append(warnings, fmt.Sprintf("step %q: selector %q does not look like a CSS selector", step.ID, step.Selector))
		}
	}

	errorHandling := schemas.ErrorHandling{RetryCount: 3, TimeoutMs: 30000}
	if s.ErrorHandling != nil {
		errorHandling = *s.ErrorHandling
	}
	validation := schemas.Validation{}
	if s.Validation != nil {
		validation = *s.Validation
	}

	p := &schemas.Plan{
		ID:              uuid.NewString(),
		TaskSignature:   schemas.TaskSignature(instruction, url),
		Instruction:     instruction,
		URL:             url,
		Steps:           s.Steps,
		ExpectedResults: s.ExpectedResults,
		ErrorHandling:   errorHandling,
		Validation:      validation,
		Metadata: schemas.PlanMetadata{
			CreatedAt:           time.Now().UTC().Format(time.RFC3339),
			Confidence:          clampConfidence(s.Confidence),
			EstimatedDurationMs: estimateDurationMs(s.Steps),
		},
		Version:  1,
		IsActive: true,
	}
	return p, warnings, nil
}

// looksLikeSelector is a shallow plausibility check: a CSS selector should
// not be empty, pure whitespace, or an obvious natural-language phrase.
func looksLikeSelector(selector string) bool {
	if strings.TrimSpace(selector) == "" {
		return false
	}
	// Four or more bare words with no CSS syntax at all read as prose.
	if len(strings.Fields(selector)) >= 4 && !strings.ContainsAny(selector, "#.[]=>:*()") {
		return false
	}
	for _, r := range selector {
		if r == ' ' {
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '#' || r == '.' || r == '[' || r == ']' || r == '=' || r == '"' || r == '\'' ||
			r == '-' || r == '_' || r == '>' || r == ':' || r == '(' || r == ')' || r == '*' {
			continue
		}
		return false
	}
	return true
}

// estimateDurationMs sums the per-type constants from spec §4.4.
func estimateDurationMs(steps []schemas.Step) int {
	total := 0
	for _, step := range steps {
		switch step.Type {
		case schemas.StepNavigate:
			total += 3000
		case schemas.StepWait:
			wait := step.WaitTime
			if wait == 0 {
				wait = 1000
			}
			total += wait
		case schemas.StepWaitForSelector:
			timeout := 10000
			if step.WaitForSelector != nil && step.WaitForSelector.TimeoutMs > 0 {
				timeout = step.WaitForSelector.TimeoutMs
			}
			if timeout > 10000 {
				timeout = 10000
			}
			total += timeout
		case schemas.StepClick, schemas.StepInputType, schemas.StepSelect, schemas.StepHover, schemas.StepKeyPress:
			total += 500
		case schemas.StepExtract, schemas.StepEvaluate:
			total += 200
		case schemas.StepScroll, schemas.StepReload, schemas.StepGoBack, schemas.StepGoForward:
			total += 1000
		case schemas.StepScreenshot:
			total += 1000
		}
	}
	return total
}
