package interactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchloom/pagewatch/internal/schemas"
)

func TestPromoteTrace_AssignsSequentialIdsAndConfidence(t *testing.T) {
	steps := []schemas.InteractiveStep{
		{Action: schemas.Step{Type: schemas.StepNavigate}, ProgressScore: 0.3, ExecutionResult: schemas.StepExecutionResult{DurationMs: 100}},
		{Action: schemas.Step{Type: schemas.StepExtract, Selector: "title"}, ProgressScore: 0.9, ExecutionResult: schemas.StepExecutionResult{DurationMs: 50}},
	}

	p := promoteTrace(steps, "get the title", "https://example.com")
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "step-1", p.Steps[0].ID)
	assert.Equal(t, "step-2", p.Steps[1].ID)
	assert.Equal(t, 0.9, p.Metadata.Confidence)
	assert.Equal(t, 150, p.Metadata.EstimatedDurationMs)
	assert.Equal(t, []string{"All steps executed successfully"}, p.Validation.SuccessCriteria)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, schemas.TaskSignature("get the title", "https://example.com"), p.TaskSignature)
}
