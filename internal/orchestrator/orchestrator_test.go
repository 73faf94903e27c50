package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/analyzer"
	"github.com/xkilldash9x/repomedic/internal/config"
	"github.com/xkilldash9x/repomedic/internal/monitor"
	"github.com/xkilldash9x/repomedic/internal/patcher"
)

// -- Scenario fakes --

type fakeAnalyzer struct {
	analysis    *analyzer.Analysis
	cloneFiles  map[string]string
	cloneErr    error
	testResults []schemas.ExecResult
	testCalls   int
}

func (f *fakeAnalyzer) Clone(ctx context.Context, repoURL, dest string) error {
	if f.cloneErr != nil {
		return f.cloneErr
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for name, content := range f.cloneFiles {
		path := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, runID, workDir string) (*analyzer.Analysis, error) {
	return f.analysis, nil
}

func (f *fakeAnalyzer) RunTests(ctx context.Context, runID, workDir string, rt schemas.RuntimeDescriptor) (schemas.ExecResult, error) {
	f.testCalls++
	if len(f.testResults) == 0 {
		return schemas.ExecResult{}, nil
	}
	idx := f.testCalls - 1
	if idx >= len(f.testResults) {
		idx = len(f.testResults) - 1
	}
	return f.testResults[idx], nil
}

type fakeFixer struct {
	proposals [][]schemas.FixProposal
	err       error
	calls     int
	panics    bool
}

func (f *fakeFixer) Generate(ctx context.Context, rawLog string, records []schemas.ErrorRecord, workDir string) ([]schemas.FixProposal, error) {
	if f.panics {
		panic("fixer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.proposals) {
		idx = len(f.proposals) - 1
	}
	if idx < 0 {
		return nil, nil
	}
	return f.proposals[idx], nil
}

type fakeCommitter struct {
	commitsPerCall int
	pushErr        error
	prepareCalls   int
	commitCalls    int
	pushCalls      int
}

func (f *fakeCommitter) PrepareBranch(workDir, branch string) error {
	f.prepareCalls++
	return nil
}

func (f *fakeCommitter) CommitFixes(workDir string, fixes []schemas.AppliedFix) (int, error) {
	f.commitCalls++
	return f.commitsPerCall, nil
}

func (f *fakeCommitter) Push(ctx context.Context, workDir, branch string) error {
	f.pushCalls++
	return f.pushErr
}

type fakeMonitor struct {
	obs   monitor.Observation
	calls int
}

func (f *fakeMonitor) Observe(ctx context.Context, owner, repo, branch string) monitor.Observation {
	f.calls++
	return f.obs
}

type captureBus struct {
	mu      sync.Mutex
	events  []schemas.Event
	dropped []string
}

func (b *captureBus) Publish(ev schemas.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *captureBus) Drop(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = append(b.dropped, runID)
}

func (b *captureBus) all() []schemas.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]schemas.Event, len(b.events))
	copy(out, b.events)
	return out
}

type captureRegistry struct {
	runID  string
	status schemas.RunStatus
	report *schemas.FinalReport
}

func (r *captureRegistry) Finalize(runID string, status schemas.RunStatus, report *schemas.FinalReport) error {
	r.runID = runID
	r.status = status
	r.report = report
	return nil
}

// -- Harness --

type harness struct {
	cfg       *config.Config
	analyzer  *fakeAnalyzer
	fixer     *fakeFixer
	committer *fakeCommitter
	monitor   *fakeMonitor
	bus       *captureBus
	registry  *captureRegistry
	orch      *Orchestrator
	run       schemas.Run
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Sandbox.WorkRoot = filepath.Join(t.TempDir(), "tmp")
	cfg.Pipeline.ResultsDir = filepath.Join(t.TempDir(), "results")

	h := &harness{
		cfg:       cfg,
		analyzer:  &fakeAnalyzer{},
		fixer:     &fakeFixer{},
		committer: &fakeCommitter{commitsPerCall: 1},
		monitor:   &fakeMonitor{obs: monitor.Observation{Conclusion: "no_ci", Reason: "No workflows configured"}},
		bus:       &captureBus{},
		registry:  &captureRegistry{},
	}

	orch, err := New(cfg, zap.NewNop(), h.analyzer, h.fixer, patcher.New(zap.NewNop()), h.committer, h.monitor, h.bus, h.registry)
	require.NoError(t, err)
	h.orch = orch

	h.run = schemas.Run{
		ID:         "run-test",
		RepoURL:    "https://github.com/octo/repo",
		TeamName:   "team",
		LeaderName: "lead",
		Branch:     "TEAM_LEAD_AI_FIX",
		Status:     schemas.RunStatusRunning,
	}
	return h
}

func (h *harness) execute() {
	h.orch.Execute(context.Background(), h.run)
}

func (h *harness) workDir() string {
	return filepath.Join(h.cfg.Sandbox.WorkRoot, h.run.ID)
}

func failingAnalysis(log string) *analyzer.Analysis {
	return &analyzer.Analysis{
		Language: schemas.LanguagePython,
		Runtime:  analyzer.RuntimeFor(schemas.LanguagePython),
		Result:   schemas.ExecResult{ExitCode: 1, Stderr: log},
		Passed:   false,
	}
}

func timelineStatuses(report *schemas.FinalReport) []schemas.IterationStatus {
	statuses := make([]schemas.IterationStatus, len(report.Timeline))
	for i, entry := range report.Timeline {
		statuses[i] = entry.Status
	}
	return statuses
}

// -- Scenarios --

func TestExecute_GreenOnFirstRun(t *testing.T) {
	h := newHarness(t)
	h.analyzer.analysis = &analyzer.Analysis{
		Language: schemas.LanguageNode,
		Runtime:  analyzer.RuntimeFor(schemas.LanguageNode),
		Result:   schemas.ExecResult{ExitCode: 0, Stdout: "all passing"},
		Passed:   true,
	}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusPassed, report.FinalStatus)
	assert.Equal(t, schemas.RunStatusCompleted, h.registry.status)
	assert.Equal(t, 0, report.TotalFailures)
	assert.Equal(t, 0, report.TotalFixes)
	assert.Equal(t, []schemas.IterationStatus{schemas.IterationPassed}, timelineStatuses(report))
	assert.Equal(t, 0, report.Timeline[0].Iteration)
	assert.Equal(t, 10, report.ScoreBreakdown.SpeedBonus)
}

func TestExecute_OneShotFix(t *testing.T) {
	h := newHarness(t)
	errLog := `File "src/a.py", line 1: SyntaxError: invalid syntax`
	h.analyzer.cloneFiles = map[string]string{"src/a.py": "def f()\n    return 1\n"}
	h.analyzer.analysis = failingAnalysis(errLog)
	h.analyzer.testResults = []schemas.ExecResult{{ExitCode: 0, Stdout: "1 passed"}}
	h.fixer.proposals = [][]schemas.FixProposal{{{
		File: "src/a.py", Line: 1, Kind: schemas.ErrorKindSyntax,
		Description: "add colon", OriginalCode: "def f()", FixedCode: "def f():",
		CommitMessage: "Fix syntax",
	}}}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusPassed, report.FinalStatus)
	assert.Equal(t, 1, report.TotalFailures)
	assert.Equal(t, 1, report.TotalFixes)
	assert.Equal(t, 1, report.TotalCommits)
	assert.Equal(t,
		[]schemas.IterationStatus{schemas.IterationFailed, schemas.IterationPassed},
		timelineStatuses(report))
	assert.Equal(t, 1, h.committer.pushCalls)
	assert.Zero(t, h.monitor.calls, "tests passed in-sandbox, CI must not be consulted")
}

func TestExecute_LLMDegradedAllSkipped(t *testing.T) {
	h := newHarness(t)
	errLog := `File "src/a.py", line 1: SyntaxError: invalid syntax`
	h.analyzer.cloneFiles = map[string]string{"src/a.py": "def f()\n"}
	h.analyzer.analysis = failingAnalysis(errLog)
	h.analyzer.testResults = []schemas.ExecResult{{ExitCode: 1, Stderr: errLog}}
	// Placeholder proposals: inapplicable, will be Skipped by the patcher.
	h.fixer.proposals = [][]schemas.FixProposal{{{
		File: "src/a.py", Line: 1, Kind: schemas.ErrorKindSyntax,
		Description: "Automatic fix unavailable", CommitMessage: "Fix SYNTAX error in src/a.py:1",
	}}}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	assert.Equal(t,
		[]schemas.IterationStatus{schemas.IterationFailed, schemas.IterationApplyFailed},
		timelineStatuses(report))
	require.Len(t, report.Fixes, 1)
	assert.Equal(t, schemas.FixStatusSkipped, report.Fixes[0].Status)
	assert.Zero(t, h.committer.commitCalls, "nothing fixed, nothing committed")
}

func TestExecute_NoProposalsIsNoFixes(t *testing.T) {
	h := newHarness(t)
	errLog := "Error: unexplained"
	h.analyzer.analysis = failingAnalysis(errLog)
	h.fixer.proposals = [][]schemas.FixProposal{{}}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	assert.Equal(t,
		[]schemas.IterationStatus{schemas.IterationFailed, schemas.IterationNoFixes},
		timelineStatuses(report))
}

func TestExecute_BudgetExhausted(t *testing.T) {
	h := newHarness(t)
	errLog := `File "src/a.py", line 1: SyntaxError: invalid syntax`
	h.analyzer.cloneFiles = map[string]string{"src/a.py": "def f()\nmore\ncontent\nhere\nok\n"}
	h.analyzer.analysis = failingAnalysis(errLog)
	// Tests keep failing on every re-run.
	h.analyzer.testResults = []schemas.ExecResult{{ExitCode: 1, Stderr: errLog}}
	// Every iteration applies a line-anchored fix successfully, but it never helps.
	h.fixer.proposals = [][]schemas.FixProposal{{{
		File: "src/a.py", Line: 1, Kind: schemas.ErrorKindSyntax,
		Description: "attempt", OriginalCode: "nonexistent snippet", FixedCode: "def f():",
		CommitMessage: "Fix syntax",
	}}}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	assert.Len(t, report.Timeline, h.cfg.Pipeline.RetryLimit+1, "retry bound: limit iterations plus the initial analysis")
	assert.Equal(t, -10, report.ScoreBreakdown.IterationPenalty, "(5-3)*5 penalty, negated in the report")
	assert.Equal(t, h.cfg.Pipeline.RetryLimit, h.monitor.calls, "CI consulted after every failed re-test")
}

func TestExecute_CIPassShortCircuits(t *testing.T) {
	h := newHarness(t)
	errLog := `File "src/a.py", line 1: SyntaxError: invalid syntax`
	h.analyzer.cloneFiles = map[string]string{"src/a.py": "def f()\n"}
	h.analyzer.analysis = failingAnalysis(errLog)
	h.analyzer.testResults = []schemas.ExecResult{{ExitCode: 1, Stderr: errLog}}
	h.fixer.proposals = [][]schemas.FixProposal{{{
		File: "src/a.py", Line: 1, Kind: schemas.ErrorKindSyntax,
		Description: "fix", OriginalCode: "def f()", FixedCode: "def f():",
		CommitMessage: "Fix",
	}}}
	h.monitor.obs = monitor.Observation{Triggered: true, Passed: true, Conclusion: "success"}

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusPassed, report.FinalStatus)
	assert.Equal(t,
		[]schemas.IterationStatus{schemas.IterationFailed, schemas.IterationCIPassed},
		timelineStatuses(report))
	assert.Equal(t, 1, h.monitor.calls)
}

func TestExecute_PushFailureRecordsError(t *testing.T) {
	h := newHarness(t)
	errLog := `File "src/a.py", line 1: SyntaxError: invalid syntax`
	h.analyzer.cloneFiles = map[string]string{"src/a.py": "def f()\n"}
	h.analyzer.analysis = failingAnalysis(errLog)
	h.fixer.proposals = [][]schemas.FixProposal{{{
		File: "src/a.py", Line: 1, Kind: schemas.ErrorKindSyntax,
		Description: "fix", OriginalCode: "def f()", FixedCode: "def f():",
		CommitMessage: "Fix",
	}}}
	h.committer.pushErr = errors.New("remote rejected")

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	statuses := timelineStatuses(report)
	assert.Equal(t, schemas.IterationError, statuses[len(statuses)-1])
}

func TestExecute_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.analyzer.analysis = failingAnalysis("Error: boom")
	h.fixer.panics = true

	assert.NotPanics(t, func() { h.execute() })

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	statuses := timelineStatuses(report)
	assert.Equal(t, schemas.IterationError, statuses[len(statuses)-1])
	assert.NoDirExists(t, h.workDir())
}

// -- Universal invariants --

func TestExecute_WorkingTreeCleanup(t *testing.T) {
	h := newHarness(t)
	h.analyzer.cloneFiles = map[string]string{"a.txt": "x"}
	h.analyzer.analysis = &analyzer.Analysis{
		Runtime: analyzer.RuntimeFor(schemas.LanguageNode),
		Result:  schemas.ExecResult{ExitCode: 0},
		Passed:  true,
	}

	h.execute()

	assert.NoDirExists(t, h.workDir())
}

func TestExecute_PipelineDoneIsLastAndCoherent(t *testing.T) {
	h := newHarness(t)
	h.analyzer.analysis = &analyzer.Analysis{
		Runtime: analyzer.RuntimeFor(schemas.LanguageNode),
		Result:  schemas.ExecResult{ExitCode: 0},
		Passed:  true,
	}

	h.execute()

	events := h.bus.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, schemas.EventPipelineDone, last.Event)
	assert.Equal(t, 100, last.Progress)

	// Report-event coherence: the terminal event carries the stored report.
	assert.Same(t, h.registry.report, last.Data)

	// And the on-disk report decodes to the same document.
	raw, err := os.ReadFile(filepath.Join(h.cfg.Pipeline.ResultsDir, h.run.ID+".json"))
	require.NoError(t, err)
	var onDisk schemas.FinalReport
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, h.registry.report.RunID, onDisk.RunID)
	assert.Equal(t, h.registry.report.FinalStatus, onDisk.FinalStatus)
	assert.Equal(t, h.registry.report.ScoreBreakdown, onDisk.ScoreBreakdown)

	// First event is pipeline_start; ordering is emission order.
	assert.Equal(t, schemas.EventPipelineStart, events[0].Event)

	// Once the report is archived the run's event log is released.
	assert.Equal(t, []string{h.run.ID}, h.bus.dropped)
}

func TestExecute_CloneFailureStillFinalizes(t *testing.T) {
	h := newHarness(t)
	h.analyzer.cloneErr = errors.New("repository not found")

	h.execute()

	report := h.registry.report
	require.NotNil(t, report)
	assert.Equal(t, schemas.FinalStatusFailed, report.FinalStatus)
	require.NotEmpty(t, report.Timeline)
	assert.Equal(t, schemas.IterationError, report.Timeline[len(report.Timeline)-1].Status)
	assert.NoDirExists(t, h.workDir())
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	cfg := config.NewDefaultConfig()
	_, err := New(cfg, zap.NewNop(), nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
