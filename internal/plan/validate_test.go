package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchloom/pagewatch/internal/schemas"
)

func TestValidate_NavigateInheritsURL(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepNavigate, Description: "go"},
	}}
	p, _, err := validate(s, "do it", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", p.Steps[0].URL)
}

func TestValidate_ClickRequiresSelector(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepClick, Description: "click"},
	}}
	_, _, err := validate(s, "do it", "https://example.com")
	assert.Error(t, err)
}

func TestValidate_TypeRequiresSelectorAndValue(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepInputType, Description: "type", Selector: "#box"},
	}}
	_, _, err := validate(s, "do it", "https://example.com")
	assert.Error(t, err)
}

func TestValidate_WaitForSelectorDefaults(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepWaitForSelector, Description: "wait", Selector: "#box"},
	}}
	p, _, err := validate(s, "do it", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 10000, p.Steps[0].WaitForSelector.TimeoutMs)
}

func TestValidate_WaitDefaults(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepWait, Description: "pause"},
	}}
	p, _, err := validate(s, "do it", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Steps[0].WaitTime)
}

func TestValidate_ConfidenceClamped(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{{ID: "s1", Type: schemas.StepWait, Description: "pause"}}, Confidence: 1.5}
	p, _, err := validate(s, "do it", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Metadata.Confidence)
}

func TestValidate_NoSteps(t *testing.T) {
	_, _, err := validate(scaffold{}, "do it", "https://example.com")
	assert.Error(t, err)
}

func TestValidate_ImplausibleSelectorIsWarningOnly(t *testing.T) {
	s := scaffold{Steps: []schemas.Step{
		{ID: "s1", Type: schemas.StepClick, Description: "click", Selector: "the blue button at the top"},
	}}
	p, warnings, err := validate(s, "do it", "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, warnings)
}

func TestEstimateDurationMs(t *testing.T) {
	steps := []schemas.Step{
		{Type: schemas.StepNavigate},
		{Type: schemas.StepClick},
		{Type: schemas.StepExtract},
		{Type: schemas.StepScreenshot},
	}
	assert.Equal(t, 3000+500+200+1000, estimateDurationMs(steps))
}

func TestEstimateDurationMs_WaitForSelectorCapsAt10000(t *testing.T) {
	steps := []schemas.Step{
		{Type: schemas.StepWaitForSelector, WaitForSelector: &schemas.WaitForSelectorOptions{TimeoutMs: 50000}},
	}
	assert.Equal(t, 10000, estimateDurationMs(steps))
}
