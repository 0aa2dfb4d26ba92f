// Package apierr defines the typed error taxonomy shared by the LLM
// clients, the browser session, and the orchestrator, so callers can branch
// on error kind with errors.As instead of string matching.
package apierr

import "fmt"

// ValidationError reports a TaskInput or generated Plan that failed schema
// or invariant checks.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// PlanGenerationError wraps a failure to produce a usable Plan from the LLM.
type PlanGenerationError struct {
	Reason string
	Cause  error
}

func (e PlanGenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("plan generation failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("plan generation failed: %s", e.Reason)
}

func (e PlanGenerationError) Unwrap() error { return e.Cause }

// BrowserExecutionError reports that a specific plan step failed during
// browser execution.
type BrowserExecutionError struct {
	StepID string
	Cause  error
}

func (e BrowserExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepID, e.Cause)
}

func (e BrowserExecutionError) Unwrap() error { return e.Cause }

// NavigationTimeout reports that a page navigation did not settle in time.
type NavigationTimeout struct {
	URL     string
	TimeoutMs int
}

func (e NavigationTimeout) Error() string {
	return fmt.Sprintf("navigation to %s exceeded %dms", e.URL, e.TimeoutMs)
}

// CacheBackendError wraps a plan-cache read/write failure.
type CacheBackendError struct {
	Op    string
	Cause error
}

func (e CacheBackendError) Error() string {
	return fmt.Sprintf("cache backend error during %s: %v", e.Op, e.Cause)
}

func (e CacheBackendError) Unwrap() error { return e.Cause }

// TransportTimeout reports a network-level failure talking to an LLM or
// browser endpoint, distinct from an API-level error response.
type TransportTimeout struct {
	Cause error
}

func (e TransportTimeout) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e TransportTimeout) Unwrap() error { return e.Cause }

// RateLimited reports a 429-class response, with the server's suggested
// retry delay if one was provided.
type RateLimited struct {
	RetryAfterSeconds int
}

func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

// APIError is a non-retryable error response from an LLM provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}
