// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
	"github.com/xkilldash9x/repomedic/internal/events"
	"github.com/xkilldash9x/repomedic/internal/registry"
)

// RunLauncher starts the pipeline for a submitted run. The submit endpoint
// never blocks on the pipeline.
type RunLauncher interface {
	Launch(run schemas.Run)
}

// Server hosts the collaborator-facing HTTP surface: submit, observe, listing
// and health.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	bus      *events.Bus
	launcher RunLauncher
	engine   *gin.Engine
	started  time.Time
}

// New assembles the HTTP server and its routes.
func New(cfg *config.Config, logger *zap.Logger, reg *registry.Registry, bus *events.Bus, launcher RunLauncher) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		registry: reg,
		bus:      bus,
		launcher: launcher,
		started:  time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.Use(corsMiddleware(cfg.Server.FrontendURL))

	api := engine.Group("/api")
	{
		api.POST("/run-agent", s.handleSubmitRun)
		api.GET("/results/:runId", s.handleResults)
		api.GET("/runs", s.handleListRuns)
		api.GET("/health", s.handleHealth)
		api.GET("/docker-status", s.handleDockerStatus)
	}
	engine.GET("/ws", s.handleWebSocket)

	s.engine = engine
	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
