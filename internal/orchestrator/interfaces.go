// internal/orchestrator/interfaces.go
package orchestrator

import (
	"context"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/analyzer"
	"github.com/xkilldash9x/repomedic/internal/monitor"
)

// RepoAnalyzer senses the target repository: clone, runtime detection and
// test execution.
type RepoAnalyzer interface {
	Clone(ctx context.Context, repoURL, dest string) error
	Analyze(ctx context.Context, runID, workDir string) (*analyzer.Analysis, error)
	RunTests(ctx context.Context, runID, workDir string, rt schemas.RuntimeDescriptor) (schemas.ExecResult, error)
}

// FixGenerator turns classified errors into patch proposals.
type FixGenerator interface {
	Generate(ctx context.Context, rawLog string, records []schemas.ErrorRecord, workDir string) ([]schemas.FixProposal, error)
}

// PatchApplier applies proposals to the working tree.
type PatchApplier interface {
	Apply(workDir string, proposals []schemas.FixProposal) []schemas.AppliedFix
}

// BranchCommitter owns the git side: branch, commit, push.
type BranchCommitter interface {
	PrepareBranch(workDir, branch string) error
	CommitFixes(workDir string, fixes []schemas.AppliedFix) (int, error)
	Push(ctx context.Context, workDir, branch string) error
}

// CIMonitor observes the remote pipeline for a branch.
type CIMonitor interface {
	Observe(ctx context.Context, owner, repo, branch string) monitor.Observation
}

// EventStream is the bus surface the pipeline drives: publish events while
// the run is live, then discard the run's log once its report is archived.
type EventStream interface {
	schemas.EventPublisher
	Drop(runID string)
}

// RunFinalizer is the registry slice the pipeline writes to.
type RunFinalizer interface {
	Finalize(runID string, status schemas.RunStatus, report *schemas.FinalReport) error
}
