package scoring

import (
	"math"

	"example.com/northstar/services/custops/internal/domain"
)

// Severity base scores for priority computation
const (
	baseCritical = 40
	baseHigh     = 30
	baseMedium   = 20
	baseLow      = 10
)

// PriorityInput is everything a case priority is computed from
type PriorityInput struct {
	Severity         string
	ValueMultiplier  float64
	RecencyBonus     float64
	EngagementFactor float64
}

// PriorityScore computes a case's work-queue priority in [1, 100]. The
// severity base is scaled by the customer's value multiplier, then
// recency and engagement bonuses are added on top. The result never
// drops to zero: even all-zero inputs yield 1 so a ranked queue keeps
// every case visible.
func PriorityScore(in PriorityInput) int {
	base := clampFloat(SeverityBaseScore(in.Severity), 0, 40)
	multiplier := clampFloat(in.ValueMultiplier, 0.5, 2.0)
	recency := clampFloat(in.RecencyBonus, 0, 20)
	engagement := clampFloat(in.EngagementFactor, 0, 20)

	score := int(math.Round(base*multiplier + recency + engagement))

	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}
	return score
}

// SeverityBaseScore maps a severity to its fixed base score. Urgent
// carries the same weight as critical; an unknown severity contributes
// nothing.
func SeverityBaseScore(severity string) float64 {
	switch severity {
	case domain.SeverityCritical, domain.SeverityUrgent:
		return baseCritical
	case domain.SeverityHigh:
		return baseHigh
	case domain.SeverityMedium:
		return baseMedium
	case domain.SeverityLow:
		return baseLow
	}
	return 0
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
