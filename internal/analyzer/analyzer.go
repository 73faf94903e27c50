// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"fmt"
	"os"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/sandbox"
)

// tokenUser is the username GitHub expects alongside a token credential.
const tokenUser = "x-access-token"

// Analysis is the outcome of one sense pass: runtime facts plus the latest
// test execution.
type Analysis struct {
	Language  schemas.Language
	Runtime   schemas.RuntimeDescriptor
	TestFiles []string
	Result    schemas.ExecResult
	Passed    bool
}

// Analyzer clones the target repository, works out how to test it and runs
// the tests through the sandbox.
type Analyzer struct {
	logger   *zap.Logger
	executor schemas.SandboxExecutor
	token    string
}

// New creates an analyzer. The token, when set, is injected into clone
// authentication for private repositories.
func New(logger *zap.Logger, executor schemas.SandboxExecutor, token string) *Analyzer {
	return &Analyzer{
		logger:   logger.Named("analyzer"),
		executor: executor,
		token:    token,
	}
}

// Clone materializes the repository at dest. Shallow first; if the shallow
// clone fails the directory is emptied and a full clone is attempted.
func (a *Analyzer) Clone(ctx context.Context, repoURL, dest string) error {
	opts := &git.CloneOptions{
		URL:  repoURL,
		Tags: git.NoTags,
	}
	if a.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: tokenUser, Password: a.token}
	}

	shallow := *opts
	shallow.Depth = 1

	a.logger.Info("Cloning repository", zap.String("url", repoURL), zap.String("dest", dest))
	if _, err := git.PlainCloneContext(ctx, dest, false, &shallow); err == nil {
		return nil
	} else {
		a.logger.Warn("Shallow clone failed; retrying with full clone", zap.Error(err))
	}

	if err := resetDir(dest); err != nil {
		return fmt.Errorf("failed to reset clone target: %w", err)
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	return nil
}

// Analyze detects the runtime, discovers test files and runs the test
// command. A run is passing iff the combined command exits 0.
func (a *Analyzer) Analyze(ctx context.Context, runID, workDir string) (*Analysis, error) {
	lang := DetectLanguage(workDir)
	rt := RuntimeFor(lang)
	a.logger.Info("Language detected", zap.String("language", string(lang)), zap.String("image", rt.Image))

	tests, err := DiscoverTests(workDir, lang)
	if err != nil {
		return nil, fmt.Errorf("test discovery failed: %w", err)
	}
	a.logger.Info("Test files discovered", zap.Int("count", len(tests)))

	result, err := a.RunTests(ctx, runID, workDir, rt)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Language:  lang,
		Runtime:   rt,
		TestFiles: tests,
		Result:    result,
		Passed:    result.ExitCode == 0,
	}, nil
}

// RunTests executes installCmd && testCmd in the sandbox.
func (a *Analyzer) RunTests(ctx context.Context, runID, workDir string, rt schemas.RuntimeDescriptor) (schemas.ExecResult, error) {
	command := sandbox.JoinCommand(rt.InstallCmd, rt.TestCmd)
	a.logger.Info("Running tests", zap.String("command", command), zap.String("executor", a.executor.Name()))

	result, err := a.executor.Execute(ctx, schemas.ExecSpec{
		Image:   rt.Image,
		WorkDir: workDir,
		Command: command,
		RunID:   runID,
	})
	if err != nil {
		return schemas.ExecResult{}, fmt.Errorf("sandbox execution failed: %w", err)
	}

	a.logger.Info("Test run finished", zap.Int("exit_code", result.ExitCode))
	return result, nil
}

// CombinedLog merges stdout and stderr into the error log consumed by the
// classifier.
func (r Analysis) CombinedLog() string {
	if r.Result.Stdout == "" {
		return r.Result.Stderr
	}
	if r.Result.Stderr == "" {
		return r.Result.Stdout
	}
	return r.Result.Stdout + "\n" + r.Result.Stderr
}

// resetDir empties and recreates a directory.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
