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

const anthropicJSONInstruction = "Respond with a single JSON object only. Do not wrap it in markdown fences or add any prose before or after it."

var anthropicPricePerThousand = map[string][2]float64{
	"opus":   {0.015, 0.075},
	"sonnet": {0.003, 0.015},
	"haiku":  {0.00025, 0.00125},
	"default": {0.003, 0.015},
}

// AnthropicClient implements schemas.LLMClient against messages-style APIs
// that take a top-level `system` string and a `messages` array containing
// only user/assistant turns.
type AnthropicClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float32            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient constructs a client for the family-B ("anthropic-like") API.
func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic client: api key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	timeout := cfg.APITimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("llm_client.anthropic"),
	}, nil
}

// splitSystem pulls every RoleSystem message out, concatenating them into
// the top-level `system` field this family expects, and returns the rest
// as the conversational turns.
func splitSystem(messages []schemas.Message, jsonMode bool) (string, []anthropicMessage) {
	var system strings.Builder
	turns := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == schemas.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
			continue
		}
		turns = append(turns, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	if jsonMode {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString(anthropicJSONInstruction)
	}
	return system.String(), turns
}

func (c *AnthropicClient) buildRequest(messages []schemas.Message, opts schemas.CompletionOptions, stream bool) anthropicRequest {
	system, turns := splitSystem(messages, opts.JSONMode)
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return anthropicRequest{
		Model:       c.model,
		System:      system,
		Messages:    turns,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// Complete sends one messages-API request with exponential-backoff retry.
func (c *AnthropicClient) Complete(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (schemas.CompletionResult, error) {
	payload := c.buildRequest(messages, opts, false)
	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("anthropic client: marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result schemas.CompletionResult

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("anthropic client: build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

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
			return fmt.Errorf("anthropic client: read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.classifyError(resp.StatusCode, respBody)
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("anthropic client: decode response: %w", err))
		}
		if len(parsed.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic client: no content blocks returned"))
		}

		var text strings.Builder
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}

		c.logger.Info("completion finished",
			zap.Duration("duration", duration),
			zap.Int("input_tokens", parsed.Usage.InputTokens),
			zap.Int("output_tokens", parsed.Usage.OutputTokens),
		)

		result = schemas.CompletionResult{
			Content:      text.String(),
			FinishReason: parsed.StopReason,
			Model:        parsed.Model,
			Usage: schemas.TokenUsage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
				TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			},
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.CompletionResult{}, err
	}
	return result, nil
}

// CompleteStream issues a streaming messages-API request and forwards each
// `content_block_delta` event as a StreamChunk.
func (c *AnthropicClient) CompleteStream(ctx context.Context, messages []schemas.Message, opts schemas.CompletionOptions) (<-chan schemas.StreamChunk, error) {
	payload := c.buildRequest(messages, opts, true)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
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
		var usage schemas.TokenUsage
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				cumulative.WriteString(event.Delta.Text)
				select {
				case out <- schemas.StreamChunk{ChunkContent: event.Delta.Text, CumulativeContent: cumulative.String()}:
				case <-ctx.Done():
					return
				}
			case "message_delta":
				usage.CompletionTokens = event.Usage.OutputTokens
			case "message_stop":
				out <- schemas.StreamChunk{CumulativeContent: cumulative.String(), IsComplete: true, Usage: &usage}
				return
			}
		}
	}()
	return out, nil
}

func (c *AnthropicClient) classifyError(status int, body []byte) error {
	c.logger.Error("api error", zap.Int("status", status), zap.ByteString("body", body))
	switch status {
	case http.StatusTooManyRequests:
		return apierr.RateLimited{RetryAfterSeconds: 5}
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway:
		return fmt.Errorf("anthropic client: transient status %d: %s", status, body)
	default:
		return backoff.Permanent(apierr.APIError{Status: status, Code: "anthropic_error", Message: string(body)})
	}
}

// EstimateCost computes a rough USD cost from the model's price table.
func (c *AnthropicClient) EstimateCost(promptTokens, completionTokens int) float64 {
	prices := anthropicPricePerThousand["default"]
	m := strings.ToLower(c.model)
	for key, p := range anthropicPricePerThousand {
		if key != "default" && strings.Contains(m, key) {
			prices = p
			break
		}
	}
	return (float64(promptTokens)/1000)*prices[0] + (float64(completionTokens)/1000)*prices[1]
}

// TestConnection sends a minimal completion to confirm reachability.
func (c *AnthropicClient) TestConnection(ctx context.Context) bool {
	_, err := c.Complete(ctx, []schemas.Message{{Role: schemas.RoleUser, Content: "ping"}}, schemas.CompletionOptions{MaxTokens: 1, Temperature: 0})
	return err == nil
}
