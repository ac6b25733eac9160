package health

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

// IncomeUnavailable is the real-time details text when income is missing.
const IncomeUnavailable = "Income data not available"

// realTimePressure scores expense_ratio = expenses / income.
var realTimePressure = []scoreBand{
	{match: above(1.5), points: -3, reason: func(r float64) string {
		return fmt.Sprintf("CRITICAL overspending: spending %.1fx income", r)
	}},
	{match: above(1.0), points: -2, reason: func(r float64) string {
		return fmt.Sprintf("Overspending by %.0f%% of income", (r-1)*100)
	}},
	{match: above(0.9), points: -1, reason: fixed("Living paycheck to paycheck (spending >90% of income)")},
	{match: above(0.8), points: 1, reason: fixed("Moderate spending (80-90% of income)")},
	{match: always, points: 2, reason: func(r float64) string {
		return fmt.Sprintf("Healthy spending (%.0f%% of income)", r*100)
	}},
}

// realTimeSavings scores savings_rate = (income - expenses) / income.
var realTimeSavings = []scoreBand{
	{match: atLeast(0.2), points: 2, reason: func(s float64) string {
		return fmt.Sprintf("Excellent savings rate (%.0f%%)", s*100)
	}},
	{match: atLeast(0.1), points: 1, reason: func(s float64) string {
		return fmt.Sprintf("Good savings rate (%.0f%%)", s*100)
	}},
	{match: atLeast(0), points: 0, reason: func(s float64) string {
		return fmt.Sprintf("Low savings rate (%.0f%%)", s*100)
	}},
	{match: always, points: -1, reason: fixed("Negative savings (debt accumulation)")},
}

var realTimeLabels = []labelBand{
	{minScore: 3, label: domain.HealthHealthy, risk: domain.RiskLow},
	{minScore: 1, label: domain.HealthModerate, risk: domain.RiskMedium},
	{minScore: -1, label: domain.HealthAtRisk, risk: domain.RiskHigh},
	{minScore: lowest, label: domain.HealthCritical, risk: domain.RiskVeryHigh},
}

// ScoreRealTime scores health directly from income and total expenses.
// Income of zero or less yields an unscored Unknown result.
func ScoreRealTime(income, totalExpenses float64) domain.HealthResult {
	if income <= 0 {
		return domain.HealthResult{
			FinancialHealth:    domain.HealthUnknown,
			FinancialRiskLevel: domain.RiskUnknown,
			FinancialDetails:   IncomeUnavailable,
		}
	}

	ratio := totalExpenses / income
	savings := (income - totalExpenses) / income

	var score int
	reasons := make([]string, 0, 2)
	for _, step := range []struct {
		table []scoreBand
		value float64
	}{
		{realTimePressure, ratio},
		{realTimeSavings, savings},
	} {
		points, reason, _ := apply(step.table, step.value)
		score += points
		reasons = append(reasons, reason)
	}

	band := resolve(realTimeLabels, score)
	return domain.HealthResult{
		FinancialHealth:    band.label,
		Score:              domain.RealTimeScore(score),
		FinancialRiskLevel: band.risk,
		FinancialDetails:   strings.Join(reasons, "; "),
	}
}
