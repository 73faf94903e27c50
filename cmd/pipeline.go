// File: cmd/pipeline.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/internal/analyzer"
	"github.com/xkilldash9x/repomedic/internal/committer"
	"github.com/xkilldash9x/repomedic/internal/config"
	"github.com/xkilldash9x/repomedic/internal/events"
	"github.com/xkilldash9x/repomedic/internal/fixer"
	"github.com/xkilldash9x/repomedic/internal/llmclient"
	"github.com/xkilldash9x/repomedic/internal/monitor"
	"github.com/xkilldash9x/repomedic/internal/orchestrator"
	"github.com/xkilldash9x/repomedic/internal/patcher"
	"github.com/xkilldash9x/repomedic/internal/registry"
	"github.com/xkilldash9x/repomedic/internal/sandbox"
)

// pipelineDeps bundles the fully wired agent stack shared by serve and heal.
type pipelineDeps struct {
	registry     *registry.Registry
	bus          *events.Bus
	orchestrator *orchestrator.Orchestrator
}

// buildPipeline constructs the production dependency graph.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipelineDeps, error) {
	llm, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	executor := sandbox.NewExecutor(context.Background(), cfg.Sandbox, logger)

	bus := events.NewBus(logger)
	reg := registry.New(logger)

	orch, err := orchestrator.New(
		cfg,
		logger,
		analyzer.New(logger, executor, cfg.GitHub.Token),
		fixer.NewGenerator(logger, llm),
		patcher.New(logger),
		committer.New(logger, cfg.Pipeline.GitAuthorName, cfg.Pipeline.GitAuthorEmail, cfg.GitHub.Token),
		monitor.New(logger, cfg.Pipeline, cfg.GitHub.Token),
		bus,
		reg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	return &pipelineDeps{registry: reg, bus: bus, orchestrator: orch}, nil
}
