// internal/sandbox/native.go
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// NativeExecutor runs commands directly on the host when no container daemon
// is available. Same contract, no resource caps beyond the timeout.
type NativeExecutor struct {
	logger *zap.Logger
	cfg    config.SandboxConfig
}

// NewNativeExecutor creates a host-process executor.
func NewNativeExecutor(cfg config.SandboxConfig, logger *zap.Logger) *NativeExecutor {
	return &NativeExecutor{
		logger: logger.Named("sandbox.native"),
		cfg:    cfg,
	}
}

// Name identifies the executor variant.
func (n *NativeExecutor) Name() string { return "native" }

// Execute runs the command through `sh -c` in the working tree.
func (n *NativeExecutor) Execute(ctx context.Context, spec schemas.ExecSpec) (schemas.ExecResult, error) {
	if spec.Command == "" || spec.WorkDir == "" {
		return schemas.ExecResult{}, fmt.Errorf("exec spec requires workdir and command")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = n.cfg.ExecTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n.logger.Debug("Executing command natively",
		zap.String("workdir", spec.WorkDir),
		zap.Duration("timeout", timeout))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", spec.Command)
	cmd.Dir = spec.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		n.logger.Warn("Native command timed out", zap.Duration("timeout", timeout))
		return schemas.ExecResult{
			ExitCode: TimeoutExitCode,
			Stdout:   truncateTail(stdout.String()),
			Stderr:   TimeoutMarker,
		}, nil
	}

	result := schemas.ExecResult{
		Stdout: truncateTail(stdout.String()),
		Stderr: truncateTail(stderr.String()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 127
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	return result, nil
}
