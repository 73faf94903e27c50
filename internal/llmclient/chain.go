// internal/llmclient/chain.go
package llmclient

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// FallbackChain implements schemas.LLMClient over an ordered list of
// per-model clients. Per model it retries rate-limited requests up to
// MaxAttempts with exponential backoff (15s then 30s by default); when a
// model's attempts are exhausted it moves to the next model. Non-rate-limit
// errors propagate immediately.
type FallbackChain struct {
	logger  *zap.Logger
	clients []schemas.LLMClient
	labels  []string
	cfg     config.LLMConfig
}

// NewFallbackChain creates a chain over the given clients, tried in order.
func NewFallbackChain(cfg config.LLMConfig, logger *zap.Logger, clients []schemas.LLMClient, labels []string) (*FallbackChain, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("at least one client is required")
	}
	if len(labels) != len(clients) {
		return nil, fmt.Errorf("labels must match clients one to one")
	}
	return &FallbackChain{
		logger:  logger.Named("llm_chain"),
		clients: clients,
		labels:  labels,
		cfg:     cfg,
	}, nil
}

// Generate walks the model list until one produces a response.
func (f *FallbackChain) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	var lastErr error

	for i, client := range f.clients {
		label := f.labels[i]
		response, err := f.generateWithRetry(ctx, client, label, req)
		if err == nil {
			return response, nil
		}
		if !IsRateLimited(err) {
			return "", fmt.Errorf("model %s failed: %w", label, err)
		}
		f.logger.Warn("Model exhausted its rate-limit budget, falling back",
			zap.String("model", label), zap.Error(err))
		lastErr = err
	}

	return "", fmt.Errorf("all models exhausted: %w", lastErr)
}

// generateWithRetry runs up to MaxAttempts calls against a single model,
// backing off between rate-limited attempts.
func (f *FallbackChain) generateWithRetry(ctx context.Context, client schemas.LLMClient, label string, req schemas.GenerationRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialBackoff
	b.MaxInterval = f.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0

	var response string
	attempt := 0

	operation := func() error {
		attempt++
		resp, err := client.Generate(ctx, req)
		if err == nil {
			response = resp
			return nil
		}
		if IsRateLimited(err) {
			f.logger.Warn("LLM request rate limited",
				zap.String("model", label), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return response, nil
}
