package domain

import (
	"fmt"
	"sort"
	"strings"
)

// UserID identifies a person across every upstream table.
type UserID int64

// Category is one of the fixed expense categories carried by an expense row.
type Category string

// Expense categories. Upstream CSV headers carry a " (USD)" suffix.
const (
	CategoryRent                 Category = "Rent"
	CategoryGroceries            Category = "Groceries"
	CategoryEatingOut            Category = "Eating Out"
	CategoryEntertainment        Category = "Entertainment"
	CategorySubscriptionServices Category = "Subscription Services"
	CategoryEducation            Category = "Education"
	CategoryOnlineShopping       Category = "Online Shopping"
	CategorySavings              Category = "Savings"
	CategoryInvestments          Category = "Investments"
	CategoryTravel               Category = "Travel"
	CategoryFitness              Category = "Fitness"
	CategoryMiscellaneous        Category = "Miscellaneous"
)

// CurrencySuffix is appended to category names in upstream CSV headers.
const CurrencySuffix = " (USD)"

var allCategories = []Category{
	CategoryRent,
	CategoryGroceries,
	CategoryEatingOut,
	CategoryEntertainment,
	CategorySubscriptionServices,
	CategoryEducation,
	CategoryOnlineShopping,
	CategorySavings,
	CategoryInvestments,
	CategoryTravel,
	CategoryFitness,
	CategoryMiscellaneous,
}

// AllCategories returns the categories in upstream column order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory accepts "Eating Out" or the header form "Eating Out (USD)".
func ParseCategory(s string) (Category, error) {
	name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), CurrencySuffix))
	for _, c := range allCategories {
		if strings.EqualFold(string(c), name) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown expense category: %q", s)
}

// Column returns the snake_case column name used by the repository schema.
func (c Category) Column() string {
	return strings.ReplaceAll(strings.ToLower(string(c)), " ", "_")
}

// Header returns the upstream CSV header for the category.
func (c Category) Header() string {
	return string(c) + CurrencySuffix
}

// ExpenseBreakdown maps categories to non-negative amounts for one period.
// Treat values as immutable: derive new breakdowns with Clone.
type ExpenseBreakdown map[Category]float64

// Clone returns an independent copy.
func (b ExpenseBreakdown) Clone() ExpenseBreakdown {
	if b == nil {
		return nil
	}
	out := make(ExpenseBreakdown, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Total sums every category.
func (b ExpenseBreakdown) Total() float64 {
	var total float64
	for _, v := range b {
		total += v
	}
	return total
}

// Keys returns the present categories, known ones in upstream order first.
func (b ExpenseBreakdown) Keys() []Category {
	keys := make([]Category, 0, len(b))
	seen := make(map[Category]bool, len(b))
	for _, c := range allCategories {
		if _, ok := b[c]; ok {
			keys = append(keys, c)
			seen[c] = true
		}
	}
	var extra []Category
	for c := range b {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(keys, extra...)
}

// ExpenseRecord is one user's expense row. Income is nil when the upstream
// table carries no income column.
type ExpenseRecord struct {
	UserID   UserID           `json:"userId"`
	Expenses ExpenseBreakdown `json:"expenses"`
	Income   *float64         `json:"income,omitempty"`
}
