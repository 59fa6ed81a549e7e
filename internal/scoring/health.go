// Package scoring holds the pure scoring functions. Nothing here does
// I/O: callers feed in counters maintained by the projectors and get
// deterministic scores back.
package scoring

import (
	"example.com/northstar/services/custops/internal/models"
)

// Risk levels derived from the health score
const (
	RiskNone   = "none"
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Health score penalty magnitudes
const (
	penaltyUrgentOrCritical = 40
	penaltyHighSeverity     = 25
	penaltyFirstResponse    = 20
	penaltyResolution       = 30
	penaltyThreeOpen        = 15
	penaltyFiveOpen         = 10
	penaltyNegativeImpact   = 10
	penaltyCriticalImpact   = 20
	penaltyStageBreach      = 15
)

// HealthInput is the counter snapshot a health score is computed from
type HealthInput struct {
	OpenTotal    int
	OpenHigh     int
	OpenUrgent   int
	OpenCritical int

	NegativeImpactCases int
	CriticalImpactCases int

	FirstResponseBreach bool
	ResolutionBreach    bool
	StageBreach         bool
}

// HealthResult is a computed health score with its derived risk level
type HealthResult struct {
	Score      int    `json:"score"`
	Risk       string `json:"risk"`
	RiskForced bool   `json:"risk_forced"`
}

// HealthInputFromCounts adapts a company counter row into scoring input
func HealthInputFromCounts(c models.CompanyCaseCounts) HealthInput {
	return HealthInput{
		OpenTotal:           c.OpenTotal,
		OpenHigh:            c.OpenHigh,
		OpenUrgent:          c.OpenUrgent,
		OpenCritical:        c.OpenCritical,
		NegativeImpactCases: c.NegativeImpact,
		CriticalImpactCases: c.CriticalImpact,
		FirstResponseBreach: c.FirstResponseBreaches > 0,
		ResolutionBreach:    c.ResolutionBreaches > 0,
		StageBreach:         c.StageBreaches > 0,
	}
}

// HealthScore starts at 100 and subtracts a fixed penalty for each
// active negative condition, clamping the result to [0, 100]. Some
// conditions force the risk level to high regardless of the remaining
// numeric score.
func HealthScore(in HealthInput) HealthResult {
	score := 100

	if in.OpenUrgent > 0 || in.OpenCritical > 0 {
		score -= penaltyUrgentOrCritical
	}
	if in.OpenHigh > 0 {
		score -= penaltyHighSeverity
	}
	if in.FirstResponseBreach {
		score -= penaltyFirstResponse
	}
	if in.ResolutionBreach {
		score -= penaltyResolution
	}
	if in.OpenTotal >= 3 {
		score -= penaltyThreeOpen
	}
	if in.OpenTotal >= 5 {
		score -= penaltyFiveOpen
	}
	score -= in.NegativeImpactCases * penaltyNegativeImpact
	score -= in.CriticalImpactCases * penaltyCriticalImpact
	if in.StageBreach {
		score -= penaltyStageBreach
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	forced := in.OpenUrgent > 0 || in.OpenCritical > 0 ||
		in.FirstResponseBreach || in.ResolutionBreach || in.StageBreach ||
		in.CriticalImpactCases > 0

	risk := riskForScore(score)
	if forced {
		risk = RiskHigh
	}

	return HealthResult{Score: score, Risk: risk, RiskForced: forced}
}

func riskForScore(score int) string {
	switch {
	case score >= 85:
		return RiskNone
	case score >= 70:
		return RiskLow
	case score >= 50:
		return RiskMedium
	default:
		return RiskHigh
	}
}
