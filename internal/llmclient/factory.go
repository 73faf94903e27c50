// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// NewClient builds the production LLM client: a fallback chain of Gemini
// clients, one per configured model, tried in declaration order.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no LLM models configured under llm.models")
	}

	clients := make([]schemas.LLMClient, 0, len(cfg.Models))
	labels := make([]string, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		client, err := NewGeminiClient(cfg, model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client for model '%s': %w", model, err)
		}
		clients = append(clients, client)
		labels = append(labels, model)
		logger.Info("Instantiated LLM client", zap.String("model", model))
	}

	return NewFallbackChain(cfg, logger, clients, labels)
}
