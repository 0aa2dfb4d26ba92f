package llmclient

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/apierr"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// Router implements schemas.LLMClient over a primary client with an
// optional fallback. It is the client the plan generator and the
// interactive agent call as their primary.
type Router struct {
	logger   *zap.Logger
	primary  schemas.LLMClient
	fallback schemas.LLMClient
}

// NewRouter wires a primary client with an optional fallback. A nil
// fallback is valid: Complete then simply surfaces the primary's error.
func NewRouter(logger *zap.Logger, primary, fallback schemas.LLMClient) *Router {
	return &Router{
		logger:   logger.Named("llm_router"),
		primary:  primary,
		fallback: fallback,
	}
}

// isRetryableOnFallback reports whether an error from the primary client
// should trigger a fallback attempt rather than propagate directly:
// transport failures and rate limits, not validation or permanent API errors.
func isRetryableOnFallback(err error) bool {
	var transport apierr.TransportTimeout
	var rateLimited apierr.RateLimited
	return errors.As(err, &transport) || errors.As(err, &rateLimited)
}

// Complete calls the primary client, falling back to the secondary client
// on a transport-level or rate-limit failure.
func (r *Router) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	result, err := r.primary.Complete(ctx, messages, opts)
	if err == nil {
		return result, nil
	}
	if r.fallback == nil || !isRetryableOnFallback(err) {
		return result, err
	}
	r.logger.Warn("primary LLM client failed, retrying against fallback", zap.Error(err))
	return r.fallback.Complete(ctx, messages, opts)
}

// CompleteStream opens the stream on the primary client and falls back to
// the secondary client only when opening it fails with a transport-level or
// rate-limit error; a failure after the stream is open is not retried, since
// partial output may already have been delivered to the caller.
func (r *Router) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	ch, err := r.primary.CompleteStream(ctx, messages, opts)
	if err == nil || r.fallback == nil || !isRetryableOnFallback(err) {
		return ch, err
	}
	r.logger.Warn("primary LLM client failed to open stream, retrying against fallback", zap.Error(err))
	return r.fallback.CompleteStream(ctx, messages, opts)
}

// EstimateCost reports the primary client's cost model.
func (r *Router) EstimateCost(promptTokens, completionTokens int) float64 {
	return r.primary.EstimateCost(promptTokens, completionTokens)
}

// TestConnection checks the primary client, falling back if it is unreachable.
func (r *Router) TestConnection(ctx context.Context) bool {
	if r.primary.TestConnection(ctx) {
		return true
	}
	if r.fallback != nil {
		return r.fallback.TestConnection(ctx)
	}
	return false
}
