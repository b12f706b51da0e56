// Package risk fuses the latest disease classification into a single
// actionable flag. "No assessment yet" is an explicit state and is
// never reported as healthy.
package risk

import "github.com/sproutgrid/greenhouse-engine/internal/domain"

// DefaultConfidenceFloor gates the high-risk flag. Matches the 80%
// banner threshold observed operationally; configurable upstream.
const DefaultConfidenceFloor = 0.80

// Fuse combines an assessment (nil when none exists) with the
// confidence floor into a RiskSignal.
func Fuse(a *domain.DiseaseAssessment, floor float64) domain.RiskSignal {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	if a == nil {
		return domain.RiskSignal{State: domain.RiskUnknown}
	}
	sig := domain.RiskSignal{
		State:      domain.RiskLow,
		Confidence: a.Confidence,
		AssessedAt: a.Timestamp,
	}
	if a.Disease && a.Confidence >= floor {
		sig.State = domain.RiskHigh
		sig.HighRisk = true
	}
	return sig
}
