package rules

import "github.com/opensource-finance/fathom/internal/domain"

func limit(v float64) *float64 { return &v }

// StarterRules returns a small advisory rule set for new deployments.
// Nothing loads them implicitly; fathomctl rules seed stores them.
func StarterRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "low-savings",
			Name:        "Low Savings Rate",
			Description: "Flags users saving less than 10% of income",
			Version:     "1.0.0",
			Expression:  "income > 0.0 && savings_rate < 0.1",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), Outcome: domain.RuleOutcomePass, Reason: "Savings rate at or above 10%"},
				{LowerLimit: limit(1), Outcome: domain.RuleOutcomeReview, Reason: "Savings rate below 10% of income"},
			},
			Enabled: true,
		},
		{
			ID:          "overspending",
			Name:        "Overspending",
			Description: "Grades spending against income",
			Version:     "1.0.0",
			Expression:  "has_expense_ratio ? expense_ratio : 0.0",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), Outcome: domain.RuleOutcomePass, Reason: "Spending within income"},
				{LowerLimit: limit(1), UpperLimit: limit(1.5), Outcome: domain.RuleOutcomeReview, Reason: "Spending exceeds income"},
				{LowerLimit: limit(1.5), Outcome: domain.RuleOutcomeFail, Reason: "Spending exceeds 1.5x income"},
			},
			Enabled: true,
		},
		{
			ID:          "online-shopping-share",
			Name:        "Online Shopping Share",
			Description: "Flags online shopping above 20% of total expenses",
			Version:     "1.0.0",
			Expression:  `total_expenses > 0.0 && "Online Shopping" in expenses ? expenses["Online Shopping"] / total_expenses : 0.0`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(0.2), Outcome: domain.RuleOutcomePass, Reason: "Online shopping share normal"},
				{LowerLimit: limit(0.2), Outcome: domain.RuleOutcomeReview, Reason: "Online shopping above 20% of expenses"},
			},
			Enabled: true,
		},
	}
}
