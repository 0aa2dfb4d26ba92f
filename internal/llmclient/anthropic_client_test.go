package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/schemas"
)

func TestAnthropicClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		resp := anthropicResponse{
			Model:      "claude-sonnet",
			Content:    []anthropicContentBlock{{Type: "text", Text: "hello there"}},
			StopReason: "end_turn",
		}
		resp.Usage.InputTokens = 12
		resp.Usage.OutputTokens = 8
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := testModelConfig(server.URL)
	cfg.Model = "claude-sonnet"
	client, err := NewAnthropicClient(cfg, zap.NewNop())
	require.NoError(t, err)

	result, err := client.Complete(context.Background(), []schemas.Message{
		{Role: schemas.RoleSystem, Content: "be terse"},
		{Role: schemas.RoleUser, Content: "hi"},
	}, schemas.CompletionOptions{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, 20, result.Usage.TotalTokens)
}

func TestSplitSystem_ConcatenatesAndAppendsJSONInstruction(t *testing.T) {
	system, turns := splitSystem([]schemas.Message{
		{Role: schemas.RoleSystem, Content: "first"},
		{Role: schemas.RoleSystem, Content: "second"},
		{Role: schemas.RoleUser, Content: "go"},
	}, true)
	assert.Contains(t, system, "first")
	assert.Contains(t, system, "second")
	assert.Contains(t, system, anthropicJSONInstruction)
	require.Len(t, turns, 1)
	assert.Equal(t, "user", turns[0].Role)
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewAnthropicClient(testModelConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []schemas.Message{{Role: schemas.RoleUser, Content: "hi"}}, schemas.CompletionOptions{})
	assert.Error(t, err)
}
