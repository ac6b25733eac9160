package budget

import (
	"fmt"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Group is a 50/30/20 allocation group.
type Group string

const (
	GroupNeeds   Group = "needs"
	GroupWants   Group = "wants"
	GroupSavings Group = "savings"
	GroupNone    Group = ""
)

var groupMembers = map[Group][]domain.Category{
	GroupNeeds: {
		domain.CategoryRent,
		domain.CategoryGroceries,
		domain.CategoryEducation,
	},
	GroupWants: {
		domain.CategoryEatingOut,
		domain.CategoryEntertainment,
		domain.CategoryOnlineShopping,
		domain.CategoryTravel,
		domain.CategorySubscriptionServices,
		domain.CategoryFitness,
		domain.CategoryMiscellaneous,
	},
	GroupSavings: {
		domain.CategorySavings,
		domain.CategoryInvestments,
	},
}

// groupOrder is the order groups are reallocated in.
var groupOrder = []Group{GroupNeeds, GroupWants, GroupSavings}

// GroupOf returns the allocation group of c, or GroupNone.
func GroupOf(c domain.Category) Group {
	for _, g := range groupOrder {
		for _, m := range groupMembers[g] {
			if m == c {
				return g
			}
		}
	}
	return GroupNone
}

// Policy holds the tunable parameters of the recommender.
type Policy struct {
	// MaxChange caps the per-category move during reallocation (0.25 = ±25%).
	MaxChange float64

	// Shares of income targeted for each group.
	NeedsShare   float64
	WantsShare   float64
	SavingsShare float64
}

// DefaultPolicy is the 50/30/20 split with a 25% change cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxChange:    0.25,
		NeedsShare:   0.5,
		WantsShare:   0.3,
		SavingsShare: 0.2,
	}
}

// PolicyFromConfig builds a policy, keeping defaults for unset fields.
func PolicyFromConfig(cfg domain.BudgetConfig) (Policy, error) {
	p := DefaultPolicy()
	if cfg.MaxChangePercent != 0 {
		p.MaxChange = cfg.MaxChangePercent
	}
	if cfg.NeedsShare != 0 || cfg.WantsShare != 0 || cfg.SavingsShare != 0 {
		p.NeedsShare = cfg.NeedsShare
		p.WantsShare = cfg.WantsShare
		p.SavingsShare = cfg.SavingsShare
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.MaxChange < 0 || p.MaxChange >= 1 {
		return fmt.Errorf("%w: max change must be in [0, 1), got %v", ErrInvalidPolicy, p.MaxChange)
	}
	for name, share := range map[string]float64{"needs": p.NeedsShare, "wants": p.WantsShare, "savings": p.SavingsShare} {
		if share < 0 {
			return fmt.Errorf("%w: %s share is negative", ErrInvalidPolicy, name)
		}
	}
	if sum := p.NeedsShare + p.WantsShare + p.SavingsShare; sum > 1+1e-9 {
		return fmt.Errorf("%w: shares sum to %.2f, more than 1", ErrInvalidPolicy, sum)
	}
	return nil
}

func (p Policy) share(g Group) float64 {
	switch g {
	case GroupNeeds:
		return p.NeedsShare
	case GroupWants:
		return p.WantsShare
	case GroupSavings:
		return p.SavingsShare
	}
	return 0
}
