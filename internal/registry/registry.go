// internal/registry/registry.go
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

// Registry is the process-wide run store: a single owned structure behind a
// mutex. The HTTP layer reads snapshots; each pipeline task writes only its
// own entry. Runs live for the process lifetime.
type Registry struct {
	logger *zap.Logger

	mu   sync.RWMutex
	runs map[string]*schemas.Run
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("registry"),
		runs:   make(map[string]*schemas.Run),
	}
}

// Create registers a new run and returns its snapshot.
func (r *Registry) Create(repoURL, teamName, leaderName, branch string) schemas.Run {
	run := &schemas.Run{
		ID:         uuid.New().String(),
		RepoURL:    repoURL,
		TeamName:   teamName,
		LeaderName: leaderName,
		Branch:     branch,
		Status:     schemas.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()

	r.logger.Info("Run registered",
		zap.String("run_id", run.ID),
		zap.String("repo", repoURL),
		zap.String("branch", branch))
	return *run
}

// Get returns a snapshot of a run.
func (r *Registry) Get(runID string) (schemas.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return schemas.Run{}, false
	}
	return *run, true
}

// Finalize moves a run to a terminal state and attaches its report. Terminal
// runs are immutable; finalizing twice is an error.
func (r *Registry) Finalize(runID string, status schemas.RunStatus, report *schemas.FinalReport) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %q", runID)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %q is already terminal (%s)", runID, run.Status)
	}

	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.Report = report
	return nil
}

// List returns summaries of all known runs, newest first.
func (r *Registry) List() []schemas.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]schemas.RunSummary, 0, len(r.runs))
	for _, run := range r.runs {
		summaries = append(summaries, run.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries
}
