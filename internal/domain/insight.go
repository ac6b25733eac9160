package domain

import "encoding/json"

// HealthLabel is the financial health verdict.
type HealthLabel string

const (
	HealthHealthy  HealthLabel = "Healthy"
	HealthModerate HealthLabel = "Moderate"
	HealthAtRisk   HealthLabel = "At Risk"
	HealthCritical HealthLabel = "Critical"
	HealthUnknown  HealthLabel = "Unknown"
)

// RiskLevel is shared by behavior and financial verdicts.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "Very High"
	RiskUnknown  RiskLevel = "Unknown"
)

// ScoreScale tags which scoring table produced a health score.
type ScoreScale string

const (
	// ScaleNone marks a result that carries no score.
	ScaleNone ScoreScale = ""

	// ScaleRealTime scores range roughly -4..4 (income vs expenses).
	ScaleRealTime ScoreScale = "realtime"

	// ScaleBatch scores range roughly -2..5 (precomputed ratios).
	ScaleBatch ScoreScale = "batch"
)

// HealthScore is a score tagged with its scale. Scores from different scales
// are not comparable; compare Value only after checking Scale.
type HealthScore struct {
	Scale ScoreScale `json:"scale,omitempty"`
	Value int        `json:"value"`
}

// RealTimeScore builds a real-time scale score.
func RealTimeScore(v int) HealthScore { return HealthScore{Scale: ScaleRealTime, Value: v} }

// BatchScore builds a batch scale score.
func BatchScore(v int) HealthScore { return HealthScore{Scale: ScaleBatch, Value: v} }

// Numeric reports whether the result was actually scored.
func (s HealthScore) Numeric() bool {
	return s.Scale != ScaleNone
}

// HealthResult is the financial insight for one user.
type HealthResult struct {
	FinancialHealth    HealthLabel `json:"financial_health"`
	Score              HealthScore `json:"-"`
	FinancialRiskLevel RiskLevel   `json:"financial_risk_level"`
	FinancialDetails   string      `json:"financial_details"`
}

// MarshalJSON flattens the tagged score into health_score and score_scale.
func (h HealthResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FinancialHealth    HealthLabel `json:"financial_health"`
		HealthScore        int         `json:"health_score"`
		ScoreScale         ScoreScale  `json:"score_scale,omitempty"`
		FinancialRiskLevel RiskLevel   `json:"financial_risk_level"`
		FinancialDetails   string      `json:"financial_details"`
	}{
		FinancialHealth:    h.FinancialHealth,
		HealthScore:        h.Score.Value,
		ScoreScale:         h.Score.Scale,
		FinancialRiskLevel: h.FinancialRiskLevel,
		FinancialDetails:   h.FinancialDetails,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (h *HealthResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		FinancialHealth    HealthLabel `json:"financial_health"`
		HealthScore        int         `json:"health_score"`
		ScoreScale         ScoreScale  `json:"score_scale"`
		FinancialRiskLevel RiskLevel   `json:"financial_risk_level"`
		FinancialDetails   string      `json:"financial_details"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.FinancialHealth = raw.FinancialHealth
	h.Score = HealthScore{Scale: raw.ScoreScale, Value: raw.HealthScore}
	h.FinancialRiskLevel = raw.FinancialRiskLevel
	h.FinancialDetails = raw.FinancialDetails
	return nil
}

// BehaviorResult is the behavior insight for one user.
type BehaviorResult struct {
	BehaviorType      string    `json:"behavior_type"`
	BehaviorRiskLevel RiskLevel `json:"behavior_risk_level"`
	BehaviorDetails   string    `json:"behavior_details"`
}

// ExpenseChange describes how one category moved between current and recommended.
type ExpenseChange struct {
	Current       float64 `json:"current"`
	Recommended   float64 `json:"recommended"`
	ChangePercent float64 `json:"change_percent"`
	ChangeAmount  float64 `json:"change_amount"`
}

// RecommendationResult is the budget proposal for the next period.
// CurrentExpenses and RecommendedExpenses always share the same key set.
type RecommendationResult struct {
	CurrentExpenses     ExpenseBreakdown           `json:"current_expenses"`
	RecommendedExpenses ExpenseBreakdown           `json:"recommended_expenses"`
	Income              float64                    `json:"income"`
	TotalExpenses       float64                    `json:"total_expenses"`
	TotalRecommended    float64                    `json:"total_recommended"`
	ScaledToIncome      bool                       `json:"scaled_to_income"`
	Changes             map[Category]ExpenseChange `json:"expense_changes"`
	InsightText         string                     `json:"insight_text"`
}

// Advisory is a non-passing advisory rule outcome attached to an insight.
type Advisory struct {
	RuleID  string  `json:"rule_id"`
	Outcome string  `json:"outcome"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// AggregateInsight is the full response for one user. Recommendation is nil
// when the user has no expense row.
type AggregateInsight struct {
	UserID              UserID                     `json:"user_id"`
	BehaviorInsight     BehaviorResult             `json:"behavior_insight"`
	FinancialInsight    HealthResult               `json:"financial_insight"`
	CurrentExpenses     ExpenseBreakdown           `json:"current_expenses"`
	RecommendedExpenses ExpenseBreakdown           `json:"recommended_expenses"`
	Income              float64                    `json:"income"`
	TotalExpenses       float64                    `json:"total_expenses"`
	InsightText         string                     `json:"insight_text"`
	ExpenseChanges      map[Category]ExpenseChange `json:"expense_changes,omitempty"`
	Recommendation      *RecommendationResult      `json:"recommendation,omitempty"`
	Advisories          []Advisory                 `json:"advisories,omitempty"`
}
