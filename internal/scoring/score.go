// internal/scoring/score.go
package scoring

import "github.com/xkilldash9x/repomedic/api/schemas"

const (
	base                = 100
	speedBonusThreshold = 300_000 // ms
	speedBonusPoints    = 10
	fixBonusCap         = 20
	fixBonusPerFix      = 2
	commitFreeAllowance = 20
	commitPenaltyPer    = 2
	iterationAllowance  = 3
	iterationPenaltyPer = 5
)

// Metrics are the inputs to the score computation. IterationCount excludes
// iteration 0 (the initial analysis).
type Metrics struct {
	TotalTimeMs    int64
	CommitCount    int
	FixCount       int
	IterationCount int
}

// Score maps run metrics to a score breakdown. Pure; penalty fields come back
// non-positive so the breakdown sums to the total directly.
func Score(m Metrics) schemas.ScoreBreakdown {
	breakdown := schemas.ScoreBreakdown{Base: base}

	if m.TotalTimeMs < speedBonusThreshold {
		breakdown.SpeedBonus = speedBonusPoints
	}

	breakdown.FixBonus = min(m.FixCount, fixBonusCap) * fixBonusPerFix

	breakdown.CommitPenalty = -max(0, m.CommitCount-commitFreeAllowance) * commitPenaltyPer
	breakdown.IterationPenalty = -max(0, m.IterationCount-iterationAllowance) * iterationPenaltyPer

	breakdown.Total = max(0, breakdown.Base+breakdown.SpeedBonus+breakdown.FixBonus+breakdown.CommitPenalty+breakdown.IterationPenalty)
	return breakdown
}
