package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/schemas"
)

func testModelConfig(endpoint string) config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:   config.ProviderOpenAI,
		Model:      "gpt-4o",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}
}

func TestOpenAIClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := openAIResponse{
			Model: "gpt-4o",
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: `{"ok":true}`}, FinishReason: "stop"},
			},
		}
		resp.Usage.PromptTokens = 10
		resp.Usage.CompletionTokens = 5
		resp.Usage.TotalTokens = 15
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	result, err := client.Complete(context.Background(), []schemas.Message{
		{Role: schemas.RoleUser, Content: "hello"},
	}, schemas.CompletionOptions{JSONMode: true, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, result.Content)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestOpenAIClient_Complete_PermanentAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(testModelConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []schemas.Message{{Role: schemas.RoleUser, Content: "hi"}}, schemas.CompletionOptions{})
	assert.Error(t, err)
}

func TestSupportsJSONMode(t *testing.T) {
	assert.True(t, supportsJSONMode("gpt-4o"))
	assert.True(t, supportsJSONMode("gpt-3.5-turbo"))
	assert.False(t, supportsJSONMode("gpt-4"))
}

func TestOpenAIClient_EstimateCost(t *testing.T) {
	client, err := NewOpenAIClient(testModelConfig("http://example.invalid"), zap.NewNop())
	require.NoError(t, err)
	cost := client.EstimateCost(1000, 1000)
	assert.Greater(t, cost, 0.0)
}
