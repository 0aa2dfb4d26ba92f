package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/apierr"
	"github.com/watchloom/pagewatch/internal/schemas"
)

type stubClient struct {
	completeErr error
	content     string
	calls       int
}

func (s *stubClient) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	s.calls++
	if s.completeErr != nil {
		return schemas.CompletionResult{}, s.completeErr
	}
	return schemas.CompletionResult{Content: s.content}, nil
}

func (s *stubClient) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	return nil, s.completeErr
}

func (s *stubClient) EstimateCost(promptTokens, completionTokens int) float64 { return 0 }

func (s *stubClient) TestConnection(ctx context.Context) bool { return s.completeErr == nil }

func TestRouter_FallsBackOnTransportError(t *testing.T) {
	primary := &stubClient{completeErr: apierr.TransportTimeout{Cause: assertErr{}}}
	fallback := &stubClient{content: "fallback response"}
	router := NewRouter(zap.NewNop(), primary, fallback)

	result, err := router.Complete(context.Background(), nil, schemas.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fallback response", result.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestRouter_DoesNotFallBackOnValidationError(t *testing.T) {
	primary := &stubClient{completeErr: assertErr{}}
	fallback := &stubClient{content: "fallback response"}
	router := NewRouter(zap.NewNop(), primary, fallback)

	_, err := router.Complete(context.Background(), nil, schemas.CompletionOptions{})
	assert.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

func TestRouter_NoFallbackConfigured(t *testing.T) {
	primary := &stubClient{completeErr: apierr.TransportTimeout{Cause: assertErr{}}}
	router := NewRouter(zap.NewNop(), primary, nil)

	_, err := router.Complete(context.Background(), nil, schemas.CompletionOptions{})
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
