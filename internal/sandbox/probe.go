// internal/sandbox/probe.go
package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// DaemonStatus describes the availability of the container daemon, served by
// the docker-status endpoint.
type DaemonStatus struct {
	Available  bool   `json:"available"`
	Version    string `json:"version,omitempty"`
	Containers int    `json:"containers,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProbeDaemon checks whether a usable container daemon is reachable.
func ProbeDaemon(ctx context.Context) DaemonStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, "docker", "version", "--format", "{{.Server.Version}}").Output()
	if err != nil {
		return DaemonStatus{Available: false, Error: err.Error()}
	}

	status := DaemonStatus{
		Available: true,
		Version:   strings.TrimSpace(string(out)),
	}

	if psOut, err := exec.CommandContext(probeCtx, "docker", "ps", "-q").Output(); err == nil {
		status.Containers = len(strings.Fields(string(psOut)))
	}

	return status
}

// NewExecutor selects the container executor when the daemon is reachable and
// falls back to direct process execution otherwise.
func NewExecutor(ctx context.Context, cfg config.SandboxConfig, logger *zap.Logger) schemas.SandboxExecutor {
	status := ProbeDaemon(ctx)
	if status.Available {
		logger.Info("Container daemon detected; using docker sandbox", zap.String("version", status.Version))
		return NewDockerExecutor(cfg, logger)
	}
	logger.Warn("Container daemon unavailable; falling back to native execution", zap.String("error", status.Error))
	return NewNativeExecutor(cfg, logger)
}
