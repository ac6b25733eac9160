package behavior

import (
	"fmt"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Expense ratio thresholds for escalation.
const (
	severeOverspendRatio = 1.5
	overspendRatio       = 1.0
)

// riskRank orders risk levels for the escalation-only check. Unknown ranks
// lowest so any known level replaces it.
var riskRank = map[domain.RiskLevel]int{
	domain.RiskUnknown:  0,
	domain.RiskLow:      1,
	domain.RiskMedium:   2,
	domain.RiskHigh:     3,
	domain.RiskVeryHigh: 4,
}

// Reconcile escalates a classified behavior when the live expense-to-income
// ratio shows overspending. A nil ratio leaves base unchanged. The result
// never carries a lower risk level than base.
func Reconcile(base domain.BehaviorResult, expenseRatio *float64) domain.BehaviorResult {
	if expenseRatio == nil {
		return base
	}
	ratio := *expenseRatio
	out := base

	switch {
	case ratio > severeOverspendRatio:
		out.BehaviorRiskLevel = domain.RiskVeryHigh
		if base.BehaviorType == TypeStable {
			out.BehaviorType = TypeConsistentlyOverspending
		}
		out.BehaviorDetails += fmt.Sprintf(" | WARNING: Spending %.1fx income", ratio)

	case ratio > overspendRatio:
		if base.BehaviorRiskLevel == domain.RiskLow || base.BehaviorRiskLevel == domain.RiskMedium {
			out.BehaviorRiskLevel = domain.RiskHigh
		}
		out.BehaviorDetails += " | Overspending detected"
	}

	if rank(out.BehaviorRiskLevel) < rank(base.BehaviorRiskLevel) {
		out.BehaviorRiskLevel = base.BehaviorRiskLevel
	}
	return out
}

func rank(r domain.RiskLevel) int {
	if n, ok := riskRank[r]; ok {
		return n
	}
	return 0
}
