// File: cmd/serve.go
package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/repomedic/internal/observability"
	"github.com/xkilldash9x/repomedic/internal/server"
)

// newServeCmd creates the serve command: the long-running HTTP API hosting
// the agent pipeline.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and agent pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			deps, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			httpServer := server.New(cfg, logger, deps.registry, deps.bus, deps.orchestrator)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return httpServer.Run(groupCtx)
			})

			logger.Info("Serving", zap.Int("port", cfg.Server.Port))
			return group.Wait()
		},
	}
}
