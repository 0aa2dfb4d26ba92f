// Package plan implements one-shot Plan generation from a natural-language
// instruction: prompting the LLM, parsing its JSON scaffold, and validating
// the result before it is ever handed to a BrowserSession.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/promptstore"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// Result is GeneratePlan's return value: either a validated Plan or a
// structured reason it could not be produced.
type Result struct {
	Plan       *schemas.Plan
	Confidence float64
	Reasoning  string
	Error      string
	Usage      schemas.TokenUsage
}

// Generator renders prompts via a PromptStore and calls an LLMClient in
// JSON mode at temperature 0.1, the fixed planning temperature per spec.
type Generator struct {
	prompts *promptstore.Store
	primary schemas.LLMClient
	logger  *zap.Logger
}

// NewGenerator wires one LLMClient (which may itself be a fallback-capable
// Router) behind the plan-generation contract.
func NewGenerator(prompts *promptstore.Store, client schemas.LLMClient, logger *zap.Logger) *Generator {
	return &Generator{prompts: prompts, primary: client, logger: logger.Named("plan.generator")}
}

// scaffold is the shape the LLM is asked to emit; it is looser than Plan so
// partially-malformed responses can still be validated field by field.
type scaffold struct {
	Steps           []schemas.Step    `json:"steps"`
	ExpectedResults []string          `json:"expectedResults"`
	ErrorHandling   *schemas.ErrorHandling `json:"errorHandling"`
	Validation      *schemas.Validation    `json:"validation"`
	Confidence      float64           `json:"confidence"`
	Reasoning       string            `json:"reasoning"`
}

// GeneratePlan renders the planning prompts, calls the LLM once, and
// validates the resulting scaffold into a Plan.
func (g *Generator) GeneratePlan(ctx context.Context, instruction, url, pageText string) Result {
	if err := promptstore.ValidateTaskInputs(instruction, url); err != nil {
		return Result{Error: "validation"}
	}

	messages := []schemas.Message{
		{Role: schemas.RoleSystem, Content: g.prompts.RenderSystem(url)},
		{Role: schemas.RoleUser, Content: g.prompts.RenderUserPlan(instruction, url, pageText)},
	}

	completion, err := g.primary.Complete(ctx, messages, schemas.CompletionOptions{JSONMode: true, Temperature: 0.1, MaxTokens: 2048})
	if err != nil {
		g.logger.Warn("plan generation call failed", zap.Error(err))
		return Result{Error: "llm_failure"}
	}

	scaffold, err := parseScaffold(completion.Content)
	if err != nil {
		g.logger.Warn("plan generation returned unparseable JSON", zap.Error(err))
		return Result{Error: "validation"}
	}

	validated, warnings, err := validate(scaffold, instruction, url)
	for _, w := range warnings {
		g.logger.Warn("plan validation warning", zap.String("warning", w))
	}
	if err != nil {
		return Result{Error: "validation", Confidence: clampConfidence(scaffold.Confidence)}
	}

	return Result{
		Plan:       validated,
		Confidence: validated.Metadata.Confidence,
		Reasoning:  scaffold.Reasoning,
		Usage:      completion.Usage,
	}
}

// GeneratePlanWithFallback tries a second LLMClient when the first call
// fails outright or returns confidence below 0.5, keeping whichever result
// scored higher.
func (g *Generator) GeneratePlanWithFallback(ctx context.Context, instruction, url, pageText string, fallback schemas.LLMClient) Result {
	primaryResult := g.GeneratePlan(ctx, instruction, url, pageText)
	if primaryResult.Plan != nil && primaryResult.Confidence >= 0.5 {
		return primaryResult
	}
	if fallback == nil {
		return primaryResult
	}

	fallbackGenerator := &Generator{prompts: g.prompts, primary: fallback, logger: g.logger}
	fallbackResult := fallbackGenerator.GeneratePlan(ctx, instruction, url, pageText)

	if fallbackResult.Plan == nil {
		return primaryResult
	}
	if primaryResult.Plan == nil || fallbackResult.Confidence > primaryResult.Confidence {
		return fallbackResult
	}
	return primaryResult
}

func parseScaffold(content string) (scaffold, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var s scaffold
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &s); err != nil {
		return scaffold{}, fmt.Errorf("plan: unmarshal scaffold: %w", err)
	}
	return s, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
