// Package budget proposes next period's expense breakdown: a nudge by
// financial health, a capped 50/30/20 reallocation, then an income ceiling.
package budget

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fathom/internal/domain"
)

var (
	// ErrNoExpenseData is returned when the user has no expense amounts.
	ErrNoExpenseData = errors.New("no expense data")

	// ErrInvalidPolicy is returned for an unusable policy.
	ErrInvalidPolicy = errors.New("invalid budget policy")

	// ErrInvalidAmount is returned when income or an expense amount is
	// negative, NaN or infinite.
	ErrInvalidAmount = errors.New("invalid amount")
)

// nudgeRule is the health-conditioned adjustment applied before reallocation.
type nudgeRule struct {
	scaled     []domain.Category
	factor     float64
	boosted    []domain.Category
	boostShare float64 // of total current expenses
}

var nudges = map[domain.HealthLabel]nudgeRule{
	domain.HealthHealthy: {
		boosted:    []domain.Category{domain.CategorySavings, domain.CategoryInvestments},
		boostShare: 0.05,
	},
	domain.HealthModerate: {
		scaled:     []domain.Category{domain.CategoryEatingOut, domain.CategoryEntertainment, domain.CategoryOnlineShopping},
		factor:     0.7,
		boosted:    []domain.Category{domain.CategorySavings},
		boostShare: 0.05,
	},
	domain.HealthAtRisk: {
		scaled:     []domain.Category{domain.CategoryEatingOut, domain.CategoryEntertainment, domain.CategoryOnlineShopping, domain.CategoryTravel},
		factor:     0.5,
		boosted:    []domain.Category{domain.CategorySavings},
		boostShare: 0.10,
	},
}

// nudgeFor resolves the rule for a label. Critical shares the At Risk rule;
// anything unrecognized is treated as Moderate.
func nudgeFor(label domain.HealthLabel) nudgeRule {
	if label == domain.HealthCritical {
		label = domain.HealthAtRisk
	}
	if rule, ok := nudges[label]; ok {
		return rule
	}
	return nudges[domain.HealthModerate]
}

// Recommender computes budget recommendations under a fixed policy.
// It holds no mutable state and is safe for concurrent use.
type Recommender struct {
	policy Policy
}

// NewRecommender creates a recommender with the given policy.
func NewRecommender(policy Policy) *Recommender {
	return &Recommender{policy: policy}
}

// Policy returns the recommender's policy.
func (r *Recommender) Policy() Policy {
	return r.policy
}

// Recommend proposes a breakdown for the next period. The result has the
// same categories as current and never sums to more than income.
// InsightText is left empty; see Explain.
func (r *Recommender) Recommend(current domain.ExpenseBreakdown, income float64, label domain.HealthLabel) (*domain.RecommendationResult, error) {
	if len(current) == 0 {
		return nil, ErrNoExpenseData
	}
	if !validAmount(income) {
		return nil, fmt.Errorf("%w: income %v", ErrInvalidAmount, income)
	}
	for c, v := range current {
		if !validAmount(v) {
			return nil, fmt.Errorf("%w: %s amount %v", ErrInvalidAmount, c, v)
		}
	}

	nudged := nudge(current, label)
	reallocated := reallocate(nudged, income, r.policy)
	for c, v := range reallocated {
		if !validAmount(v) {
			return nil, fmt.Errorf("%w: %s overflowed during reallocation", ErrInvalidAmount, c)
		}
	}
	recommended, scaled := applyCeiling(reallocated, income)

	result := &domain.RecommendationResult{
		CurrentExpenses:     current.Clone(),
		RecommendedExpenses: recommended,
		Income:              income,
		TotalExpenses:       current.Total(),
		TotalRecommended:    sumCents(recommended),
		ScaledToIncome:      scaled,
	}
	result.Changes = Changes(result.CurrentExpenses, result.RecommendedExpenses)
	return result, nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// nudge applies the health rule. Categories absent from current stay absent.
func nudge(current domain.ExpenseBreakdown, label domain.HealthLabel) domain.ExpenseBreakdown {
	rule := nudgeFor(label)
	total := current.Total()
	out := current.Clone()

	for _, c := range rule.scaled {
		if v, ok := out[c]; ok {
			out[c] = v * rule.factor
		}
	}
	for _, c := range rule.boosted {
		if v, ok := out[c]; ok {
			out[c] = v + rule.boostShare*total
		}
	}
	return out
}

// reallocate scales each group toward its share of income, clamping every
// category to within MaxChange of its nudged value. The cap wins over the
// target, so a group may end away from its share.
func reallocate(nudged domain.ExpenseBreakdown, income float64, p Policy) domain.ExpenseBreakdown {
	out := nudged.Clone()

	for _, g := range groupOrder {
		var sum float64
		for _, c := range groupMembers[g] {
			sum += out[c]
		}
		if sum == 0 {
			continue
		}

		scale := p.share(g) * income / sum
		for _, c := range groupMembers[g] {
			v, ok := out[c]
			if !ok {
				continue
			}
			out[c] = clamp(v*scale, v*(1-p.MaxChange), v*(1+p.MaxChange))
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyCeiling scales the breakdown uniformly down to income when it exceeds
// it, then rounds every amount to cents. Any overshoot introduced by rounding
// is trimmed a cent at a time from the largest categories.
func applyCeiling(b domain.ExpenseBreakdown, income float64) (domain.ExpenseBreakdown, bool) {
	ceiling := income
	if ceiling < 0 {
		ceiling = 0
	}

	factor := 1.0
	scaled := false
	if total := b.Total(); total > ceiling {
		scaled = true
		if total > 0 {
			factor = ceiling / total
		}
	}

	cents := make(map[domain.Category]decimal.Decimal, len(b))
	sum := decimal.Zero
	for c, v := range b {
		d := decimal.NewFromFloat(v * factor).Round(2)
		if d.IsNegative() {
			d = decimal.Zero
		}
		cents[c] = d
		sum = sum.Add(d)
	}

	limit := decimal.NewFromFloat(ceiling).Truncate(2)
	if sum.GreaterThan(limit) {
		trimOvershoot(cents, sum.Sub(limit), b.Keys())
	}

	out := make(domain.ExpenseBreakdown, len(cents))
	for c, d := range cents {
		out[c] = d.InexactFloat64()
	}
	return out, scaled
}

var cent = decimal.New(1, -2)

// trimOvershoot removes overshoot from the largest amounts, one cent per
// category per pass, never going below zero.
func trimOvershoot(cents map[domain.Category]decimal.Decimal, overshoot decimal.Decimal, order []domain.Category) {
	keys := make([]domain.Category, len(order))
	copy(keys, order)
	sort.SliceStable(keys, func(i, j int) bool {
		return cents[keys[i]].GreaterThan(cents[keys[j]])
	})

	for overshoot.IsPositive() {
		trimmed := false
		for _, c := range keys {
			if !overshoot.IsPositive() {
				return
			}
			if cents[c].LessThan(cent) {
				continue
			}
			cents[c] = cents[c].Sub(cent)
			overshoot = overshoot.Sub(cent)
			trimmed = true
		}
		if !trimmed {
			return
		}
	}
}

func sumCents(b domain.ExpenseBreakdown) float64 {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Round(2).InexactFloat64()
}
