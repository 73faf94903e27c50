// File: api/schemas/schemas.go
// Shared wire types exchanged between the pipeline agents, the run registry
// and the HTTP layer.
package schemas

import "time"

// RunStatus describes the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether the status is immutable.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusError
}

// ErrorKind classifies a single test-output error line.
type ErrorKind string

const (
	ErrorKindSyntax      ErrorKind = "SYNTAX"
	ErrorKindLinting     ErrorKind = "LINTING"
	ErrorKindLogic       ErrorKind = "LOGIC"
	ErrorKindTypeError   ErrorKind = "TYPE_ERROR"
	ErrorKindImport      ErrorKind = "IMPORT"
	ErrorKindIndentation ErrorKind = "INDENTATION"
	ErrorKindRuntime     ErrorKind = "RUNTIME"
	ErrorKindUnknown     ErrorKind = "UNKNOWN"
)

// ErrorRecord is one structured error extracted from a raw test log.
type ErrorRecord struct {
	Kind       ErrorKind `json:"kind"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	RawMessage string    `json:"rawMessage"`
}

// FixProposal is an LLM-produced patch candidate for a single error.
type FixProposal struct {
	File          string    `json:"file"`
	Line          int       `json:"line"`
	Kind          ErrorKind `json:"kind"`
	Description   string    `json:"description"`
	OriginalCode  string    `json:"originalCode"`
	FixedCode     string    `json:"fixedCode"`
	CommitMessage string    `json:"commitMessage"`
}

// Applicable reports whether the proposal carries enough information for the
// patch applier to act on it.
func (p FixProposal) Applicable() bool {
	return p.File != "" && p.OriginalCode != "" && p.FixedCode != ""
}

// FixStatus is the terminal status of an applied fix.
type FixStatus string

const (
	FixStatusFixed   FixStatus = "Fixed"
	FixStatusFailed  FixStatus = "Failed"
	FixStatusSkipped FixStatus = "Skipped"
)

// AppliedFix is a FixProposal after the patch applier has attempted it.
type AppliedFix struct {
	FixProposal
	Status FixStatus `json:"status"`
	Reason string    `json:"reason,omitempty"`
}

// IterationStatus labels one timeline entry of the heal loop.
type IterationStatus string

const (
	IterationPassed      IterationStatus = "PASSED"
	IterationFailed      IterationStatus = "FAILED"
	IterationNoFixes     IterationStatus = "NO_FIXES"
	IterationApplyFailed IterationStatus = "APPLY_FAILED"
	IterationCIPassed    IterationStatus = "CI_PASSED"
	IterationError       IterationStatus = "ERROR"
)

// IterationRecord is one entry of the run timeline. Iteration 0 is the
// initial analysis; iteration N>0 is the Nth repair attempt.
type IterationRecord struct {
	Iteration int             `json:"iteration"`
	Status    IterationStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// Language identifies the detected runtime of a target repository.
type Language string

const (
	LanguageNode   Language = "node"
	LanguagePython Language = "python"
	LanguageGo     Language = "go"
	LanguageRust   Language = "rust"
	LanguageJava   Language = "java"
)

// RuntimeDescriptor tells the sandbox how to install and test a repository.
type RuntimeDescriptor struct {
	Image      string `json:"image"`
	InstallCmd string `json:"installCmd"`
	TestCmd    string `json:"testCmd"`
}

// ScoreBreakdown is the scored summary of a run. Penalty fields are
// serialized as non-positive values.
type ScoreBreakdown struct {
	Base             int `json:"base"`
	SpeedBonus       int `json:"speedBonus"`
	FixBonus         int `json:"fixBonus"`
	CommitPenalty    int `json:"commitPenalty"`
	IterationPenalty int `json:"iterationPenalty"`
	Total            int `json:"total"`
}

// ReportedFix is the report-facing projection of an AppliedFix.
type ReportedFix struct {
	File          string    `json:"file"`
	BugType       ErrorKind `json:"bugType"`
	LineNumber    int       `json:"lineNumber"`
	CommitMessage string    `json:"commitMessage"`
	Description   string    `json:"description"`
	Status        FixStatus `json:"status"`
}

// FinalStatus values of a finished run.
const (
	FinalStatusPassed = "PASSED"
	FinalStatusFailed = "FAILED"
)

// FinalReport is the scored, structured summary of a whole run. Its JSON keys
// are stable; external viewers depend on them.
type FinalReport struct {
	RunID          string            `json:"runId"`
	RepoURL        string            `json:"repoUrl"`
	TeamName       string            `json:"teamName"`
	LeaderName     string            `json:"leaderName"`
	Branch         string            `json:"branch"`
	TotalFailures  int               `json:"totalFailures"`
	TotalFixes     int               `json:"totalFixes"`
	TotalCommits   int               `json:"totalCommits"`
	FinalStatus    string            `json:"finalStatus"`
	TotalTime      string            `json:"totalTime"`
	TotalTimeMs    int64             `json:"totalTimeMs"`
	ScoreBreakdown ScoreBreakdown    `json:"scoreBreakdown"`
	Fixes          []ReportedFix     `json:"fixes"`
	Timeline       []IterationRecord `json:"timeline"`
	GeneratedAt    time.Time         `json:"generatedAt"`
}

// Event names emitted over the run event stream, in approximate pipeline order.
const (
	EventPipelineStart    = "pipeline_start"
	EventCloneStart       = "clone_start"
	EventCloneDone        = "clone_done"
	EventDetectDone       = "detect_done"
	EventTestsDiscovered  = "tests_discovered"
	EventTestsStart       = "tests_start"
	EventTestsDone        = "tests_done"
	EventIterationStart   = "iteration_start"
	EventFixGenerateStart = "fix_generate_start"
	EventFixGenerateDone  = "fix_generate_done"
	EventFixApplied       = "fix_applied"
	EventBranchReady      = "branch_ready"
	EventCommitted        = "committed"
	EventPushed           = "pushed"
	EventCITriggerStart   = "ci_trigger_start"
	EventCITriggered      = "ci_triggered"
	EventCIPollStart      = "ci_poll_start"
	EventCIStatus         = "ci_status"
	EventPipelineDone     = "pipeline_done"
)

// Event is a structured record describing one step of a run's lifecycle.
type Event struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Progress  int       `json:"progress,omitempty"`
}

// Run is the registry record of a submitted pipeline run. The owning pipeline
// task is the only writer; the HTTP layer reads snapshots through the
// registry. The run's ordered event log lives on the event bus, keyed by run
// id.
type Run struct {
	ID          string       `json:"runId"`
	RepoURL     string       `json:"repoUrl"`
	TeamName    string       `json:"teamName"`
	LeaderName  string       `json:"leaderName"`
	Branch      string       `json:"branch"`
	Status      RunStatus    `json:"status"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Report      *FinalReport `json:"result,omitempty"`
}

// RunSummary is the listing projection served by GET /api/runs.
type RunSummary struct {
	RunID       string     `json:"runId"`
	RepoURL     string     `json:"repoUrl"`
	TeamName    string     `json:"teamName"`
	Branch      string     `json:"branch"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Summary builds the listing projection of a run.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		RunID:       r.ID,
		RepoURL:     r.RepoURL,
		TeamName:    r.TeamName,
		Branch:      r.Branch,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
