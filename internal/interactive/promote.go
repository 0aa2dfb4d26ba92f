package interactive

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// promoteTrace converts a successful, non-escalated interactive run into a
// replayable Plan: each InteractiveStep's action becomes a Step with a fresh
// sequential id, and the last step's progress score becomes the plan's
// confidence.
func promoteTrace(steps []schemas.InteractiveStep, instruction, url string) schemas.Plan {
	planSteps := make([]schemas.Step, 0, len(steps))
	var totalDurationMs int64

	for i, s := range steps {
		step := s.Action
		step.ID = fmt.Sprintf("step-%d", i+1)
		planSteps = append(planSteps, step)
		totalDurationMs += s.ExecutionResult.DurationMs
	}

	confidence := 0.0
	if len(steps) > 0 {
		confidence = steps[len(steps)-1].ProgressScore
	}

	return schemas.Plan{
		ID:            uuid.NewString(),
		TaskSignature: schemas.TaskSignature(instruction, url),
		Instruction:   instruction,
		URL:           url,
		Steps:         planSteps,
		Validation: schemas.Validation{
			SuccessCriteria: []string{"All steps executed successfully"},
			FailureCriteria: []string{"Any step failed with error"},
		},
		ErrorHandling: schemas.ErrorHandling{RetryCount: 3, TimeoutMs: 30000},
		Metadata: schemas.PlanMetadata{
			CreatedAt:           time.Now().UTC().Format(time.RFC3339),
			Confidence:          confidence,
			EstimatedDurationMs: int(totalDurationMs),
		},
		Version:  1,
		IsActive: true,
	}
}
