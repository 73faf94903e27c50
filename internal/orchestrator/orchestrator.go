// File: internal/orchestrator/orchestrator.go
// Description: Drives the heal loop for one run: analyze, fix, commit,
// verify, bounded by the retry budget. The orchestrator is the only component
// that converts an unhandled error into a terminal run state.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/analyzer"
	"github.com/xkilldash9x/repomedic/internal/classify"
	"github.com/xkilldash9x/repomedic/internal/config"
)

// Orchestrator composes the four agents under the run state machine.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	analyzer  RepoAnalyzer
	fixer     FixGenerator
	patcher   PatchApplier
	committer BranchCommitter
	monitor   CIMonitor
	bus       EventStream
	registry  RunFinalizer
}

// New wires an orchestrator from its collaborating agents.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	repoAnalyzer RepoAnalyzer,
	fixGenerator FixGenerator,
	patchApplier PatchApplier,
	branchCommitter BranchCommitter,
	ciMonitor CIMonitor,
	bus EventStream,
	reg RunFinalizer,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || repoAnalyzer == nil || fixGenerator == nil ||
		patchApplier == nil || branchCommitter == nil || ciMonitor == nil || bus == nil || reg == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		analyzer:  repoAnalyzer,
		fixer:     fixGenerator,
		patcher:   patchApplier,
		committer: branchCommitter,
		monitor:   ciMonitor,
		bus:       bus,
		registry:  reg,
	}, nil
}

// Launch starts the pipeline for a run on its own goroutine. The submit path
// returns immediately; the run always reaches a terminal state.
func (o *Orchestrator) Launch(run schemas.Run) {
	go o.Execute(context.Background(), run)
}

// pipelineState accumulates everything the final report needs.
type pipelineState struct {
	run           schemas.Run
	workDir       string
	startedAt     time.Time
	timeline      []schemas.IterationRecord
	fixes         []schemas.AppliedFix
	totalFailures int
	totalCommits  int
	finalStatus   string
}

// Execute runs the whole pipeline synchronously. Every exit path removes the
// working directory and finalizes the run.
func (o *Orchestrator) Execute(ctx context.Context, run schemas.Run) {
	state := &pipelineState{
		run:         run,
		workDir:     filepath.Join(o.cfg.Sandbox.WorkRoot, run.ID),
		startedAt:   time.Now(),
		finalStatus: schemas.FinalStatusFailed,
	}
	logger := o.logger.With(zap.String("run_id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			state.record(schemas.IterationError, len(state.timeline))
		}
		o.cleanup(state, logger)
		o.finalize(state, logger)
	}()

	o.emit(run.ID, schemas.EventPipelineStart, "orchestrator",
		fmt.Sprintf("Pipeline started for %s", run.RepoURL), nil, 0)

	if err := o.runHealLoop(ctx, state, logger); err != nil {
		logger.Error("Pipeline terminated by error", zap.Error(err))
		state.record(schemas.IterationError, len(state.timeline))
	}
}

// runHealLoop is the state machine body. Returned errors are pipeline-fatal;
// everything recoverable is handled in place.
func (o *Orchestrator) runHealLoop(ctx context.Context, state *pipelineState, logger *zap.Logger) error {
	run := state.run

	// -- Clone --
	o.emit(run.ID, schemas.EventCloneStart, "analyzer", "Cloning repository", nil, 5)
	if err := o.analyzer.Clone(ctx, run.RepoURL, state.workDir); err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	o.emit(run.ID, schemas.EventCloneDone, "analyzer", "Repository cloned", nil, 10)

	// -- Initial analysis (iteration 0) --
	analysis, err := o.analyzeAndEmit(ctx, state)
	if err != nil {
		return err
	}

	log := analysis.CombinedLog()
	state.totalFailures = len(classify.Classify(log))

	if analysis.Passed {
		state.record(schemas.IterationPassed, 0)
		state.finalStatus = schemas.FinalStatusPassed
		return nil
	}
	state.record(schemas.IterationFailed, 0)

	owner, repo, err := schemas.ParseRepoURL(run.RepoURL)
	if err != nil {
		return fmt.Errorf("unparseable repository URL reached the pipeline: %w", err)
	}

	// -- Repair iterations --
	limit := o.cfg.Pipeline.RetryLimit
	for i := 1; i <= limit; i++ {
		progress := iterationProgress(i, limit)
		o.emit(run.ID, schemas.EventIterationStart, "orchestrator",
			fmt.Sprintf("Iteration %d of %d", i, limit), nil, progress)

		records := classify.Classify(log)

		o.emit(run.ID, schemas.EventFixGenerateStart, "fixer",
			fmt.Sprintf("Generating fixes for %d errors", len(records)), nil, progress)
		proposals, err := o.fixer.Generate(ctx, log, records, state.workDir)
		if err != nil {
			return fmt.Errorf("fix generation failed: %w", err)
		}
		o.emit(run.ID, schemas.EventFixGenerateDone, "fixer",
			fmt.Sprintf("%d proposals generated", len(proposals)), nil, progress)

		if len(proposals) == 0 {
			logger.Warn("No fix proposals; giving up", zap.Int("iteration", i))
			state.record(schemas.IterationNoFixes, i)
			return nil
		}

		applied := o.patcher.Apply(state.workDir, proposals)
		state.fixes = append(state.fixes, applied...)
		fixedCount := 0
		for _, fix := range applied {
			if fix.Status == schemas.FixStatusFixed {
				fixedCount++
			}
			o.emit(run.ID, schemas.EventFixApplied, "patcher",
				fmt.Sprintf("%s: %s", fix.File, fix.Status), fix, progress)
		}

		if fixedCount == 0 {
			logger.Warn("No proposal could be applied", zap.Int("iteration", i))
			state.record(schemas.IterationApplyFailed, i)
			return nil
		}

		// -- Commit and push --
		if err := o.committer.PrepareBranch(state.workDir, run.Branch); err != nil {
			return fmt.Errorf("branch preparation failed: %w", err)
		}
		o.emit(run.ID, schemas.EventBranchReady, "committer", run.Branch, nil, progress)

		commits, err := o.committer.CommitFixes(state.workDir, applied)
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		state.totalCommits += commits
		o.emit(run.ID, schemas.EventCommitted, "committer",
			fmt.Sprintf("%d commits created", commits), nil, progress)

		if err := o.committer.Push(ctx, state.workDir, run.Branch); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		o.emit(run.ID, schemas.EventPushed, "committer", "Branch pushed to origin", nil, progress)

		// -- Verify --
		o.emit(run.ID, schemas.EventTestsStart, "analyzer", "Re-running tests", nil, progress)
		result, err := o.analyzer.RunTests(ctx, run.ID, state.workDir, analysis.Runtime)
		if err != nil {
			return fmt.Errorf("test re-run failed: %w", err)
		}
		o.emit(run.ID, schemas.EventTestsDone, "analyzer",
			fmt.Sprintf("Tests finished with exit code %d", result.ExitCode), nil, progress)

		if result.ExitCode == 0 {
			state.record(schemas.IterationPassed, i)
			state.finalStatus = schemas.FinalStatusPassed
			return nil
		}
		log = combineStreams(result)

		// Tests still fail in-sandbox, but the pushed commit may satisfy the
		// remote pipeline. CI observation is optional; its errors never abort
		// the run.
		if o.observeCI(ctx, state, owner, repo) {
			state.record(schemas.IterationCIPassed, i)
			state.finalStatus = schemas.FinalStatusPassed
			return nil
		}
		state.record(schemas.IterationFailed, i)
	}

	logger.Info("Retry budget exhausted", zap.Int("limit", limit))
	return nil
}

// analyzeAndEmit performs the initial sense pass with its event trail.
func (o *Orchestrator) analyzeAndEmit(ctx context.Context, state *pipelineState) (*analyzer.Analysis, error) {
	run := state.run

	analysis, err := o.analyzer.Analyze(ctx, run.ID, state.workDir)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	o.emit(run.ID, schemas.EventDetectDone, "analyzer",
		fmt.Sprintf("Detected %s runtime (%s)", analysis.Language, analysis.Runtime.Image), nil, 15)
	o.emit(run.ID, schemas.EventTestsDiscovered, "analyzer",
		fmt.Sprintf("%d test files discovered", len(analysis.TestFiles)),
		map[string]any{"testFiles": analysis.TestFiles}, 20)
	o.emit(run.ID, schemas.EventTestsStart, "analyzer", "Running test suite", nil, 25)
	o.emit(run.ID, schemas.EventTestsDone, "analyzer",
		fmt.Sprintf("Tests finished with exit code %d", analysis.Result.ExitCode), nil, 30)

	return analysis, nil
}

// observeCI runs the monitor leg of an iteration. Returns true when the
// remote pipeline concluded successfully.
func (o *Orchestrator) observeCI(ctx context.Context, state *pipelineState, owner, repo string) bool {
	run := state.run
	o.emit(run.ID, schemas.EventCITriggerStart, "monitor", "Looking for CI workflows", nil, 0)

	obs := o.monitor.Observe(ctx, owner, repo, run.Branch)

	if obs.Triggered {
		o.emit(run.ID, schemas.EventCITriggered, "monitor", obs.WorkflowName, nil, 0)
	}
	o.emit(run.ID, schemas.EventCIPollStart, "monitor", "Polling workflow runs", nil, 0)
	o.emit(run.ID, schemas.EventCIStatus, "monitor", obs.Conclusion, obs, 0)

	return obs.Passed
}

// cleanup removes the run's working tree; it must succeed-or-log on every
// exit path, including panic unwinds.
func (o *Orchestrator) cleanup(state *pipelineState, logger *zap.Logger) {
	if state.workDir == "" {
		return
	}
	if err := os.RemoveAll(state.workDir); err != nil {
		logger.Error("Failed to remove working directory", zap.String("dir", state.workDir), zap.Error(err))
	}
}

// finalize builds the report, persists it, updates the registry and emits the
// terminal event.
func (o *Orchestrator) finalize(state *pipelineState, logger *zap.Logger) {
	report := buildReport(state)

	if err := o.writeReport(report); err != nil {
		logger.Error("Failed to persist report", zap.Error(err))
	}

	status := schemas.RunStatusFailed
	if report.FinalStatus == schemas.FinalStatusPassed {
		status = schemas.RunStatusCompleted
	}
	if err := o.registry.Finalize(state.run.ID, status, report); err != nil {
		logger.Error("Failed to finalize run in registry", zap.Error(err))
	}

	o.emit(state.run.ID, schemas.EventPipelineDone, "orchestrator",
		fmt.Sprintf("Pipeline finished: %s", report.FinalStatus), report, 100)

	// The report now carries everything the log did; free the run's event
	// history. Live subscribers already received every event.
	o.bus.Drop(state.run.ID)

	logger.Info("Run finished",
		zap.String("status", report.FinalStatus),
		zap.Int("fixes", report.TotalFixes),
		zap.Int("commits", report.TotalCommits),
		zap.String("total_time", report.TotalTime))
}

// writeReport stores the report at results/{runId}.json.
func (o *Orchestrator) writeReport(report *schemas.FinalReport) error {
	dir := o.cfg.Pipeline.ResultsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}
	return writeJSONFile(filepath.Join(dir, report.RunID+".json"), report)
}

// emit publishes one structured event.
func (o *Orchestrator) emit(runID, event, agent, message string, data any, progress int) {
	o.bus.Publish(schemas.Event{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Event:     event,
		Agent:     agent,
		Message:   message,
		Data:      data,
		Progress:  progress,
	})
}

// record appends a timeline entry.
func (s *pipelineState) record(status schemas.IterationStatus, iteration int) {
	s.timeline = append(s.timeline, schemas.IterationRecord{
		Iteration: iteration,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

// iterationProgress spreads the 30..90 band across the retry budget.
func iterationProgress(i, limit int) int {
	if limit <= 0 {
		return 90
	}
	p := 30 + (60*i)/limit
	if p > 90 {
		p = 90
	}
	return p
}

func combineStreams(result schemas.ExecResult) string {
	if result.Stdout == "" {
		return result.Stderr
	}
	if result.Stderr == "" {
		return result.Stdout
	}
	return result.Stdout + "\n" + result.Stderr
}
