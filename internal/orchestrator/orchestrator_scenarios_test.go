package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/browser/session"
	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// scriptedLLM replays a fixed sequence of completion bodies, one per call,
// holding on the last entry once exhausted.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return schemas.CompletionResult{Content: s.responses[i]}, nil
}
func (s *scriptedLLM) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	return nil, nil
}
func (s *scriptedLLM) EstimateCost(p, c int) float64        { return 0 }
func (s *scriptedLLM) TestConnection(ctx context.Context) bool { return true }

func extractTitleAction(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"action": map[string]interface{}{
			"id":   "extract-1",
			"type": string(schemas.StepExtract),
		},
		"progress": map[string]interface{}{
			"score":      1,
			"isComplete": true,
		},
		"reasoning": "title extracted",
	})
	require.NoError(t, err)
	return string(body)
}

// TestScenario_InteractiveExtractTitleSucceedsWithoutCachedPlan drives the
// interactive loop (no cached plan, auto mode) against a model that reports
// completion on its first step, and checks the extracted title survives the
// mergeParsedFields pass and the interactive Result shape is built correctly.
func TestScenario_InteractiveExtractTitleSucceedsWithoutCachedPlan(t *testing.T) {
	browser := &fakeBrowser{
		execute: func(ctx context.Context, p schemas.Plan, opts session.ExecuteOptions) schemas.ExecutionResult {
			t.Fatalf("replay should not be reached when the interactive loop completes on its own")
			return schemas.ExecutionResult{}
		},
	}
	llm := &scriptedLLM{responses: []string{extractTitleAction(t)}}

	o, err := New(
		&config.Config{},
		zap.NewNop(),
		newFakeCache(),
		func() BrowserSession { return &extractingBrowser{fakeBrowser: browser} },
		&fakeGenerator{},
		llm,
		nil,
		promptstore.New(""),
		nil,
		nil,
	)
	require.NoError(t, err)

	result, err := o.Handle(context.Background(), schemas.TaskInput{
		Instruction: "get the page title", URL: "https://example.com",
		Options: &schemas.TaskOptions{ExecutionMode: schemas.ModeAuto},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "interactive", result.Mode)
	assert.Equal(t, "Example Domain", result.ExtractedData["title"])
	assert.False(t, result.Escalation.Escalated)
	assert.Len(t, result.InteractiveSteps, 1)
}

// extractingBrowser layers an ExecuteStep override for the extract action
// onto fakeBrowser, whose own ExecuteStep always reports success but never
// returns extracted content.
type extractingBrowser struct {
	*fakeBrowser
}

func (e *extractingBrowser) ExecuteStep(ctx context.Context, step schemas.Step) schemas.StepOutcome {
	if step.Type == schemas.StepExtract {
		return schemas.StepOutcome{Success: true, Extracted: "<title>Example Domain</title>"}
	}
	return schemas.StepOutcome{Success: true}
}

// TestScenario_CacheSignatureStabilityAcrossWhitespaceAndCase confirms a plan
// cached under one rendering of an (instruction, url) pair replays as a cache
// hit for differently-whitespaced/cased/trailing-slashed renderings of the
// same pair, end to end through Handle.
func TestScenario_CacheSignatureStabilityAcrossWhitespaceAndCase(t *testing.T) {
	cache := newFakeCache()
	sig := schemas.TaskSignature("Get The Title", "https://Example.com/Path/")
	require.NoError(t, cache.Put(context.Background(), samplePlan(sig)))

	browser := &fakeBrowser{execute: func(ctx context.Context, p schemas.Plan, opts session.ExecuteOptions) schemas.ExecutionResult {
		return schemas.ExecutionResult{Status: schemas.StatusSuccess, ExtractedData: map[string]interface{}{"title": "Example"}}
	}}
	o := newTestOrchestrator(t, browser, cache, &fakeGenerator{}, nil, nil)

	result, err := o.Handle(context.Background(), schemas.TaskInput{
		Instruction: "  get   the title ", URL: "HTTPS://example.com/Path",
		Options: &schemas.TaskOptions{ExecutionMode: schemas.ModeAuto},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Metrics.CacheHit)
	assert.Equal(t, "plan-"+sig, result.PlanID)
}
