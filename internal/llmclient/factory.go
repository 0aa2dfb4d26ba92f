package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/schemas"
)

// NewClient builds the concrete LLMClient for one named model entry,
// dispatching on its configured provider family.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. supported: [%s, %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderAnthropic)
	}
}
