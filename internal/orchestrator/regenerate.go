package orchestrator

import (
	"strings"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// regenerationTriggers are the case-insensitive substrings that, if present
// in a failed replay's error message, logs, or stack, indicate a stale
// selector or timeout worth regenerating the plan over.
var regenerationTriggers = []string{
	"timeout", "selector", "element not found", "not visible",
	"waitforselector", "waitforelement", "locator", "exceeded",
}

// needsRegeneration reports whether a failed/errored replay looks like a
// stale-selector or timeout failure rather than a genuine page/logic error.
func needsRegeneration(result schemas.ExecutionResult) bool {
	if result.Status != schemas.StatusFailed && result.Status != schemas.StatusError {
		return false
	}
	haystacks := make([]string, 0, len(result.Logs)+2)
	if result.Error != nil {
		haystacks = append(haystacks, result.Error.Message, result.Error.Stack)
	}
	haystacks = append(haystacks, result.Logs...)

	for _, h := range haystacks {
		lower := strings.ToLower(h)
		for _, trigger := range regenerationTriggers {
			if strings.Contains(lower, trigger) {
				return true
			}
		}
	}
	return false
}
