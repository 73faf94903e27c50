// internal/sandbox/docker.go
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// runLabelKey labels every container with its owning run so stragglers can be
// reaped even after the process that started them is gone.
const runLabelKey = "repomedic.run"

// workspaceMount is the fixed in-container path the working tree is mounted at.
const workspaceMount = "/workspace"

// DockerExecutor runs commands inside resource-capped containers through the
// docker CLI.
type DockerExecutor struct {
	logger *zap.Logger
	cfg    config.SandboxConfig
}

// NewDockerExecutor creates a container-backed executor.
func NewDockerExecutor(cfg config.SandboxConfig, logger *zap.Logger) *DockerExecutor {
	return &DockerExecutor{
		logger: logger.Named("sandbox.docker"),
		cfg:    cfg,
	}
}

// Name identifies the executor variant.
func (d *DockerExecutor) Name() string { return "docker" }

// Execute runs the command inside a fresh container mounted on the working
// tree. Infrastructure failures (missing image, dead daemon) come back as a
// non-zero exit code with the failure text on stderr.
func (d *DockerExecutor) Execute(ctx context.Context, spec schemas.ExecSpec) (schemas.ExecResult, error) {
	if spec.Command == "" || spec.WorkDir == "" || spec.Image == "" {
		return schemas.ExecResult{}, fmt.Errorf("exec spec requires image, workdir and command")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = d.cfg.ExecTimeout
	}

	containerName := fmt.Sprintf("repomedic-%s-%d", spec.RunID, time.Now().UnixNano())

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Containers are scoped to the run by both name and label; --rm plus the
	// deferred reap covers the timeout and error paths too.
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"--label", fmt.Sprintf("%s=%s", runLabelKey, spec.RunID),
		"--memory", d.cfg.Memory,
		"--memory-swap", d.cfg.MemorySwap,
		"--cpus", d.cfg.CPUs,
		"--network", "bridge",
		"-v", fmt.Sprintf("%s:%s", spec.WorkDir, workspaceMount),
		"-w", workspaceMount,
		spec.Image,
		"sh", "-c", spec.Command,
	}

	d.logger.Debug("Executing command in container",
		zap.String("image", spec.Image),
		zap.String("container", containerName),
		zap.Duration("timeout", timeout))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "docker", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	defer d.reap(spec.RunID, containerName)

	if runCtx.Err() == context.DeadlineExceeded {
		d.logger.Warn("Sandbox command timed out", zap.String("container", containerName), zap.Duration("timeout", timeout))
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
			// docker binary missing, daemon unreachable before the container
			// started, and similar infrastructure failures.
			result.ExitCode = 125
			if result.Stderr == "" {
				result.Stderr = err.Error()
			} else {
				result.Stderr = truncateTail(result.Stderr + "\n" + err.Error())
			}
		}
	}

	return result, nil
}

// reap force-removes any container left behind for the run. Best effort; a
// container that already exited under --rm is simply gone.
func (d *DockerExecutor) reap(runID, containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = exec.CommandContext(ctx, "docker", "rm", "-f", containerName).Run()

	out, err := exec.CommandContext(ctx, "docker", "ps", "-aq", "--filter", fmt.Sprintf("label=%s=%s", runLabelKey, runID)).Output()
	if err != nil {
		return
	}
	for _, id := range strings.Fields(string(out)) {
		_ = exec.CommandContext(ctx, "docker", "rm", "-f", id).Run()
	}
}
