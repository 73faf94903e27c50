package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusError.Terminal())
}

func TestFixProposal_Applicable(t *testing.T) {
	full := FixProposal{File: "a.py", OriginalCode: "x", FixedCode: "y"}
	assert.True(t, full.Applicable())

	tests := []struct {
		name string
		p    FixProposal
	}{
		{"MissingFile", FixProposal{OriginalCode: "x", FixedCode: "y"}},
		{"MissingOriginal", FixProposal{File: "a.py", FixedCode: "y"}},
		{"MissingFixed", FixProposal{File: "a.py", OriginalCode: "x"}},
		{"Empty", FixProposal{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.p.Applicable())
		})
	}
}

// The report's JSON keys are a stable contract with the results viewer.
func TestFinalReport_StableKeys(t *testing.T) {
	report := FinalReport{
		RunID:       "r1",
		RepoURL:     "https://github.com/a/b",
		TeamName:    "team",
		LeaderName:  "lead",
		Branch:      "TEAM_LEAD" + BranchSuffix,
		FinalStatus: FinalStatusPassed,
		TotalTime:   "0m 3s",
		TotalTimeMs: 3000,
		Fixes: []ReportedFix{{
			File: "src/a.py", BugType: ErrorKindSyntax, LineNumber: 1,
			CommitMessage: "m", Description: "d", Status: FixStatusFixed,
		}},
		Timeline:    []IterationRecord{{Iteration: 0, Status: IterationPassed, Timestamp: time.Now()}},
		GeneratedAt: time.Now(),
	}

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, key := range []string{
		"runId", "repoUrl", "teamName", "leaderName", "branch",
		"totalFailures", "totalFixes", "totalCommits", "finalStatus",
		"totalTime", "totalTimeMs", "scoreBreakdown", "fixes", "timeline", "generatedAt",
	} {
		assert.Contains(t, decoded, key)
	}

	breakdown := decoded["scoreBreakdown"].(map[string]any)
	for _, key := range []string{"base", "speedBonus", "fixBonus", "commitPenalty", "iterationPenalty", "total"} {
		assert.Contains(t, breakdown, key)
	}

	fix := decoded["fixes"].([]any)[0].(map[string]any)
	for _, key := range []string{"file", "bugType", "lineNumber", "commitMessage", "description", "status"} {
		assert.Contains(t, fix, key)
	}
}

func TestRun_Summary(t *testing.T) {
	now := time.Now()
	run := &Run{
		ID: "abc", RepoURL: "https://github.com/a/b", TeamName: "t",
		Branch: "B", Status: RunStatusRunning, StartedAt: now,
	}
	sum := run.Summary()
	assert.Equal(t, "abc", sum.RunID)
	assert.Equal(t, RunStatusRunning, sum.Status)
	assert.Nil(t, sum.CompletedAt)
}
