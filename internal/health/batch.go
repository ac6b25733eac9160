package health

import (
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

// InsufficientIndicators is the batch details text when no ratio is known.
const InsufficientIndicators = "Insufficient financial indicators for full assessment"

// anomalyPenalty is subtracted when the batch anomaly flag is set.
const anomalyPenalty = 2

// BatchInput carries the precomputed ratios. Nil ratios are absent upstream.
type BatchInput struct {
	SavingsRate               *float64
	ExpenseToIncomeRatio      *float64
	DiscretionaryVsFixedRatio *float64
	Anomaly                   bool
}

// BatchInputFrom adapts a stored financial row.
func BatchInputFrom(s *domain.FinancialSignal) BatchInput {
	return BatchInput{
		SavingsRate:               s.SavingsRate,
		ExpenseToIncomeRatio:      s.ExpenseToIncomeRatio,
		DiscretionaryVsFixedRatio: s.DiscretionaryVsFixedRatio,
		Anomaly:                   s.Anomaly == 1,
	}
}

var batchSavings = []scoreBand{
	{match: atLeast(0.2), points: 2, reason: fixed("Healthy savings rate")},
	{match: atLeast(0.1), points: 1, reason: fixed("Moderate savings rate")},
	{match: always, points: 0, reason: fixed("Low savings rate")},
}

var batchPressure = []scoreBand{
	{match: below(0.6), points: 2, reason: fixed("Controlled spending")},
	{match: below(0.8), points: 1, reason: fixed("Moderate spending")},
	{match: always, points: 0, reason: fixed("High spending pressure")},
}

var batchDiscretionary = []scoreBand{
	{match: below(0.5), points: 1, reason: fixed("Balanced discretionary spending")},
	{match: always, points: 0, reason: fixed("High discretionary spending")},
}

var batchLabels = []labelBand{
	{minScore: 4, label: domain.HealthHealthy, risk: domain.RiskLow},
	{minScore: 2, label: domain.HealthModerate, risk: domain.RiskMedium},
	{minScore: lowest, label: domain.HealthAtRisk, risk: domain.RiskHigh},
}

// ScoreBatch scores health from precomputed ratios on the batch scale.
// When every ratio is absent the result is Moderate with score 0.
func ScoreBatch(in BatchInput) domain.HealthResult {
	if in.SavingsRate == nil && in.ExpenseToIncomeRatio == nil && in.DiscretionaryVsFixedRatio == nil {
		return domain.HealthResult{
			FinancialHealth:    domain.HealthModerate,
			Score:              domain.BatchScore(0),
			FinancialRiskLevel: domain.RiskMedium,
			FinancialDetails:   InsufficientIndicators,
		}
	}

	var score int
	var reasons []string
	for _, step := range []struct {
		table []scoreBand
		value *float64
	}{
		{batchSavings, in.SavingsRate},
		{batchPressure, in.ExpenseToIncomeRatio},
		{batchDiscretionary, in.DiscretionaryVsFixedRatio},
	} {
		if step.value == nil {
			continue
		}
		points, reason, _ := apply(step.table, *step.value)
		score += points
		reasons = append(reasons, reason)
	}

	if in.Anomaly {
		score -= anomalyPenalty
		reasons = append(reasons, "Anomalous financial behavior detected")
	}

	band := resolve(batchLabels, score)
	return domain.HealthResult{
		FinancialHealth:    band.label,
		Score:              domain.BatchScore(score),
		FinancialRiskLevel: band.risk,
		FinancialDetails:   strings.Join(reasons, "; "),
	}
}
