package plan

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/schemas"
)

type fakeLLM struct {
	content    string
	err        error
	confidence float64
}

func (f *fakeLLM) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	if f.err != nil {
		return schemas.CompletionResult{}, f.err
	}
	return schemas.CompletionResult{Content: f.content}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	return nil, nil
}

func (f *fakeLLM) EstimateCost(promptTokens, completionTokens int) float64 { return 0 }

func (f *fakeLLM) TestConnection(ctx context.Context) bool { return f.err == nil }

func scaffoldJSON(t *testing.T, confidence float64) string {
	t.Helper()
	s := scaffold{
		Steps: []schemas.Step{
			{ID: "s1", Type: schemas.StepNavigate, Description: "go to page"},
			{ID: "s2", Type: schemas.StepExtract, Description: "read title", Selector: "title"},
		},
		Confidence: confidence,
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func TestGeneratePlan_Success(t *testing.T) {
	llm := &fakeLLM{content: scaffoldJSON(t, 0.9)}
	gen := NewGenerator(promptstore.New(""), llm, zap.NewNop())

	result := gen.GeneratePlan(context.Background(), "get the title", "https://example.com", "")
	require.NotNil(t, result.Plan)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Len(t, result.Plan.Steps, 2)
}

func TestGeneratePlan_InvalidInstructionRejected(t *testing.T) {
	llm := &fakeLLM{content: scaffoldJSON(t, 0.9)}
	gen := NewGenerator(promptstore.New(""), llm, zap.NewNop())

	result := gen.GeneratePlan(context.Background(), "", "https://example.com", "")
	assert.Nil(t, result.Plan)
	assert.Equal(t, "validation", result.Error)
}

func TestGeneratePlan_UnparseableJSON(t *testing.T) {
	llm := &fakeLLM{content: "not json"}
	gen := NewGenerator(promptstore.New(""), llm, zap.NewNop())

	result := gen.GeneratePlan(context.Background(), "get the title", "https://example.com", "")
	assert.Nil(t, result.Plan)
	assert.Equal(t, "validation", result.Error)
}

func TestGeneratePlanWithFallback_UsesFallbackOnLowConfidence(t *testing.T) {
	primary := &fakeLLM{content: scaffoldJSON(t, 0.2)}
	fallback := &fakeLLM{content: scaffoldJSON(t, 0.8)}
	gen := NewGenerator(promptstore.New(""), primary, zap.NewNop())

	result := gen.GeneratePlanWithFallback(context.Background(), "get the title", "https://example.com", "", fallback)
	require.NotNil(t, result.Plan)
	assert.Equal(t, 0.8, result.Confidence)
}

func TestGeneratePlanWithFallback_KeepsPrimaryWhenFallbackWorse(t *testing.T) {
	primary := &fakeLLM{content: scaffoldJSON(t, 0.6)}
	fallback := &fakeLLM{content: scaffoldJSON(t, 0.3)}
	gen := NewGenerator(promptstore.New(""), primary, zap.NewNop())

	result := gen.GeneratePlanWithFallback(context.Background(), "get the title", "https://example.com", "", fallback)
	require.NotNil(t, result.Plan)
	assert.Equal(t, 0.6, result.Confidence)
}
