// Package behavior classifies spending behavior from cluster and anomaly
// signals and escalates its risk when live spending outruns income.
package behavior

import (
	"fmt"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Behavior types.
const (
	TypeInconsistent             = "Inconsistent"
	TypeImpulsive                = "Impulsive"
	TypeStable                   = "Stable"
	TypeConsistentlyOverspending = "Consistently Overspending"
	TypeUnknown                  = "Unknown"
)

// NoDataDetails is used when a user has no behavior row.
const NoDataDetails = "No behavior data available"

// guard is one row of the classification table.
type guard struct {
	match        func(intensity domain.Intensity, anomalyRatio float64) bool
	behaviorType string
	risk         domain.RiskLevel
}

// classificationTable is evaluated top to bottom; first match wins.
// Anomalies take precedence over intensity.
var classificationTable = []guard{
	{
		match:        func(_ domain.Intensity, r float64) bool { return r > 0 },
		behaviorType: TypeInconsistent,
		risk:         domain.RiskHigh,
	},
	{
		match:        func(i domain.Intensity, _ float64) bool { return i == domain.IntensityHigh },
		behaviorType: TypeImpulsive,
		risk:         domain.RiskMedium,
	},
	{
		match:        func(domain.Intensity, float64) bool { return true },
		behaviorType: TypeStable,
		risk:         domain.RiskLow,
	},
}

// Classify maps a dominant intensity and anomaly ratio to a behavior result.
// An empty intensity is reported as Unknown.
func Classify(intensity domain.Intensity, anomalyRatio float64) domain.BehaviorResult {
	if intensity == "" {
		intensity = domain.IntensityUnknown
	}

	details := fmt.Sprintf("Dominant intensity=%s, anomaly_ratio=%.2f", intensity, anomalyRatio)
	for _, g := range classificationTable {
		if g.match(intensity, anomalyRatio) {
			return domain.BehaviorResult{
				BehaviorType:      g.behaviorType,
				BehaviorRiskLevel: g.risk,
				BehaviorDetails:   details,
			}
		}
	}

	// unreachable: the last guard always matches
	return domain.BehaviorResult{BehaviorType: TypeStable, BehaviorRiskLevel: domain.RiskLow, BehaviorDetails: details}
}

// ClassifySignal classifies a stored behavior row. A nil row yields the
// Unknown result used for users without behavior data.
func ClassifySignal(s *domain.BehaviorSignal) domain.BehaviorResult {
	if s == nil {
		return Unknown()
	}
	return Classify(s.DominantIntensity, s.AnomalyRatio)
}

// Unknown is the behavior result for users without behavior data.
func Unknown() domain.BehaviorResult {
	return domain.BehaviorResult{
		BehaviorType:      TypeUnknown,
		BehaviorRiskLevel: domain.RiskUnknown,
		BehaviorDetails:   NoDataDetails,
	}
}
