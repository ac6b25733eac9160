package budget

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

const (
	// changeEpsilon is the smallest move worth a line in the explanation.
	changeEpsilon = 1e-2

	// wantsNoteShare flags a wants category above this share of total expenses.
	wantsNoteShare = 0.2
)

// Explain renders the budget explanation shown with a recommendation.
// behavior and health are the final verdicts the recommendation was based on.
func Explain(rec *domain.RecommendationResult, behavior domain.BehaviorResult, health domain.HealthResult) string {
	lines := []string{
		"Hello! Here's your personalized financial insight for next month:",
		fmt.Sprintf("- Spending behavior: '%s' (Risk Level: %s)", behavior.BehaviorType, behavior.BehaviorRiskLevel),
		fmt.Sprintf("- Financial health: '%s' (Score: %d)", health.FinancialHealth, health.Score.Value),
		fmt.Sprintf("- Total Income: $%.2f USD", rec.Income),
		fmt.Sprintf("- Total Expenses: $%.2f USD", rec.TotalExpenses),
		fmt.Sprintf("- Recommended Budget: $%.2f USD (within income limit)", rec.TotalRecommended),
		"",
	}

	if rec.ScaledToIncome {
		lines = append(lines, "⚠️ Note: Your recommended budget has been adjusted to fit within your income.", "")
	}

	lines = append(lines, "Based on your current spending patterns and the 50/30/20 rule, we suggest the following adjustments:")

	for _, c := range rec.CurrentExpenses.Keys() {
		current := rec.CurrentExpenses[c]
		recommended := rec.RecommendedExpenses[c]
		if math.Abs(current-recommended) <= changeEpsilon {
			continue
		}

		var pct float64
		if current > 0 {
			pct = (recommended - current) / (current + 1e-6) * 100
		}

		group := GroupOf(c)
		if recommended > current {
			reason := "adjust proportion to match financial health targets"
			if group == GroupSavings {
				reason = "increase savings or investment focus"
			}
			lines = append(lines, fmt.Sprintf("- %s: increase from %.2f USD to %.2f USD (+%.1f%%) to %s.",
				c.Header(), current, recommended, pct, reason))
			continue
		}

		reason := "adjust proportion to match financial health targets"
		if group == GroupWants {
			reason = "reduce discretionary spending"
		}
		lines = append(lines, fmt.Sprintf("- %s: decrease from %.2f USD to %.2f USD (%.1f%%) to %s.",
			c.Header(), current, recommended, pct, reason))
	}

	for _, c := range groupMembers[GroupWants] {
		if rec.CurrentExpenses[c]/(rec.TotalExpenses+1e-6) > wantsNoteShare {
			lines = append(lines, fmt.Sprintf("* Note: %s makes up more than 20%% of your total expenses, consider moderating it.", c.Header()))
		}
	}

	lines = append(lines, "\nThese recommendations aim to help you balance your needs, wants, and savings while keeping financial health stable.")
	return strings.Join(lines, "\n")
}
