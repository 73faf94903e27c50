// internal/orchestrator/report.go
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/scoring"
)

// buildReport assembles the final scored report from accumulated pipeline
// state.
func buildReport(state *pipelineState) *schemas.FinalReport {
	elapsed := time.Since(state.startedAt)
	totalFixes := 0
	fixes := make([]schemas.ReportedFix, 0, len(state.fixes))
	for _, fix := range state.fixes {
		if fix.Status == schemas.FixStatusFixed {
			totalFixes++
		}
		fixes = append(fixes, schemas.ReportedFix{
			File:          fix.File,
			BugType:       fix.Kind,
			LineNumber:    fix.Line,
			CommitMessage: fix.CommitMessage,
			Description:   fix.Description,
			Status:        fix.Status,
		})
	}

	iterations := 0
	for _, entry := range state.timeline {
		if entry.Iteration > 0 {
			iterations++
		}
	}

	breakdown := scoring.Score(scoring.Metrics{
		TotalTimeMs:    elapsed.Milliseconds(),
		CommitCount:    state.totalCommits,
		FixCount:       totalFixes,
		IterationCount: iterations,
	})

	timeline := make([]schemas.IterationRecord, len(state.timeline))
	copy(timeline, state.timeline)

	return &schemas.FinalReport{
		RunID:          state.run.ID,
		RepoURL:        state.run.RepoURL,
		TeamName:       state.run.TeamName,
		LeaderName:     state.run.LeaderName,
		Branch:         state.run.Branch,
		TotalFailures:  state.totalFailures,
		TotalFixes:     totalFixes,
		TotalCommits:   state.totalCommits,
		FinalStatus:    state.finalStatus,
		TotalTime:      formatDuration(elapsed),
		TotalTimeMs:    elapsed.Milliseconds(),
		ScoreBreakdown: breakdown,
		Fixes:          fixes,
		Timeline:       timeline,
		GeneratedAt:    time.Now().UTC(),
	}
}

// formatDuration renders a duration as the human "Xm Ys" form the report
// contract requires.
func formatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// writeJSONFile marshals v with indentation and writes it in one shot.
func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
