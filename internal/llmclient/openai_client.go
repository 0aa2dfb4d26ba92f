// Package llmclient implements the two chat-completion families the plan
// generator and interactive agent can be routed to, behind the single
// schemas.LLMClient interface.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/apierr"
	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// openAIPricePerThousand holds rough per-1k-token USD costs, keyed by model
// name substring. Unmatched models fall back to the "default" entry.
var openAIPricePerThousand = map[string][2]float64{
	"gpt-4o":   {0.005, 0.015},
	"gpt-4":    {0.03, 0.06},
	"turbo":    {0.001, 0.002},
	"default":  {0.0015, 0.002},
}

// OpenAIClient implements schemas.LLMClient against chat-completion-style
// APIs that accept a `messages` array and an optional `response_format`.
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	cfg        config.LLMModelConfig
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float32               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	Delta        openAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type openAIResponse struct {
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient constructs a client for the family-A ("openai-like") API.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai client: api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	timeout := cfg.APITimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      cfg.Model,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("llm_client.openai"),
	}, nil
}

// supportsJSONMode matches the models whose `response_format` field the
// API actually honors: anything carrying "turbo", "3.5", or an "o"-suffix
// variant (e.g. gpt-4o).
func supportsJSONMode(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "turbo") || strings.Contains(m, "3.5") || strings.HasSuffix(m, "o")
}

func toOpenAIMessages(messages []schemas.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *OpenAIClient) buildRequest(messages []schemas.Message, opts schemas.CompletionOptions, stream bool) openAIRequest {
	req := openAIRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if opts.JSONMode && supportsJSONMode(c.model) {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return req
}

// Complete sends one chat-completion request with exponential-backoff retry
// on transient transport/5xx/429 errors.
func (c *OpenAIClient) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	payload := c.buildRequest(messages, opts, false)
	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("openai client: marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result schemas.CompletionResult

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("openai client: build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("transport error, retrying", zap.Error(err))
			return apierr.TransportTimeout{Cause: err}
		}
		defer resp.Body.Close()
		duration := time.Since(start)

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openai client: read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.classifyError(resp.StatusCode, respBody)
		}

		var parsed openAIResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("openai client: decode response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openai client: no choices returned"))
		}

		c.logger.Info("completion finished",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
			zap.Int("completion_tokens", parsed.Usage.CompletionTokens),
		)

		result = schemas.CompletionResult{
			Content:      parsed.Choices[0].Message.Content,
			FinishReason: parsed.Choices[0].FinishReason,
			Model:        parsed.Model,
			Usage: schemas.TokenUsage{
				PromptTokens:     parsed.Usage.PromptTokens,
				CompletionTokens: parsed.Usage.CompletionTokens,
				TotalTokens:      parsed.Usage.TotalTokens,
			},
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.CompletionResult{}, err
	}
	return result, nil
}

// CompleteStream issues a streaming completion and forwards each SSE data
// line as a StreamChunk over the returned channel.
func (c *OpenAIClient) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	payload := c.buildRequest(messages, opts, true)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.TransportTimeout{Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, c.classifyError(resp.StatusCode, respBody)
	}

	out := make(chan schemas.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var cumulative strings.Builder
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				out <- schemas.StreamChunk{CumulativeContent: cumulative.String(), IsComplete: true}
				return
			}
			var chunk openAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			cumulative.WriteString(delta)
			select {
			case out <- schemas.StreamChunk{ChunkContent: delta, CumulativeContent: cumulative.String()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *OpenAIClient) classifyError(status int, body []byte) error {
	c.logger.Error("api error", zap.Int("status", status), zap.ByteString("body", body))
	switch status {
	case http.StatusTooManyRequests:
		return apierr.RateLimited{RetryAfterSeconds: 5}
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway:
		return fmt.Errorf("openai client: transient status %d: %s", status, body)
	default:
		return backoff.Permanent(apierr.APIError{Status: status, Code: "openai_error", Message: string(body)})
	}
}

// EstimateCost computes a rough USD cost from the model's price table.
func (c *OpenAIClient) EstimateCost(promptTokens, completionTokens int) float64 {
	prices := openAIPricePerThousand["default"]
	m := strings.ToLower(c.model)
	for key, p := range openAIPricePerThousand {
		if key != "default" && strings.Contains(m, key) {
			prices = p
			break
		}
	}
	return (float64(promptTokens)/1000)*prices[0] + (float64(completionTokens)/1000)*prices[1]
}

// TestConnection sends a minimal completion to confirm reachability.
func (c *OpenAIClient) TestConnection(ctx context.Context) bool {
	_, err := c.Complete(ctx, []schemas.Message{{Role: schemas.RoleUser, Content: "ping"}}, schemas.CompletionOptions{MaxTokens: 1, Temperature: 0})
	return err == nil
}
