package domain

// Intensity is the dominant spending-intensity cluster label.
type Intensity string

const (
	IntensityLow     Intensity = "Low"
	IntensityMedium  Intensity = "Medium"
	IntensityHigh    Intensity = "High"
	IntensityUnknown Intensity = "Unknown"
)

// BehaviorSignal is the per-user row produced by the clustering and anomaly
// detection jobs. BehaviorType, BehaviorRiskLevel and Justification hold the
// upstream precomputed verdict; the classifier recomputes its own.
type BehaviorSignal struct {
	UserID            UserID    `json:"userId"`
	DominantIntensity Intensity `json:"dominantSpendingIntensity"`
	AnomalyRatio      float64   `json:"anomalyRatio"`
	HasAnomaly        bool      `json:"hasAnomaly"`
	BehaviorType      string    `json:"behaviorType,omitempty"`
	BehaviorRiskLevel RiskLevel `json:"behaviorRiskLevel,omitempty"`
	Justification     string    `json:"behaviorJustification,omitempty"`
}

// FinancialSignal is the per-user row produced by the batch financial health job.
// Ratio fields are nil when the upstream value was not computed.
type FinancialSignal struct {
	UserID                    UserID      `json:"userId"`
	SavingsRate               *float64    `json:"savingsRate,omitempty"`
	ExpenseToIncomeRatio      *float64    `json:"expenseToIncomeRatio,omitempty"`
	DiscretionaryVsFixedRatio *float64    `json:"discretionaryVsFixedRatio,omitempty"`
	Cluster                   int         `json:"cluster"`
	Anomaly                   int         `json:"anomaly"` // 1 = anomalous
	FinancialHealth           HealthLabel `json:"financialHealth,omitempty"`
	FinancialRiskLevel        RiskLevel   `json:"financialRiskLevel,omitempty"`
	HealthScore               float64     `json:"healthScore"`
	HealthJustification       string      `json:"healthJustification,omitempty"`
}

// Float returns a pointer to v, for optional signal fields.
func Float(v float64) *float64 {
	return &v
}
