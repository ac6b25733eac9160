// Package health scores financial health on two independent scales: a
// real-time scale from actual income and expenses, and a batch scale from
// precomputed ratios.
package health

import (
	"math"

	"github.com/opensource-finance/fathom/internal/domain"
)

// scoreBand is one row of a sub-score table. Tables are ordered and the
// first band whose match returns true contributes its points and reason.
type scoreBand struct {
	match  func(v float64) bool
	points int
	reason func(v float64) string
}

func above(limit float64) func(float64) bool  { return func(v float64) bool { return v > limit } }
func atLeast(limit float64) func(float64) bool { return func(v float64) bool { return v >= limit } }
func below(limit float64) func(float64) bool  { return func(v float64) bool { return v < limit } }
func always(float64) bool                      { return true }

func fixed(reason string) func(float64) string {
	return func(float64) string { return reason }
}

// apply returns the points and reason of the first matching band.
func apply(table []scoreBand, v float64) (int, string, bool) {
	for _, b := range table {
		if b.match(v) {
			return b.points, b.reason(v), true
		}
	}
	return 0, "", false
}

// labelBand maps a minimum total score to a label and risk level.
type labelBand struct {
	minScore int
	label    domain.HealthLabel
	risk     domain.RiskLevel
}

// resolve returns the first band whose minimum the score reaches.
func resolve(table []labelBand, score int) labelBand {
	for _, b := range table {
		if score >= b.minScore {
			return b
		}
	}
	return table[len(table)-1]
}

const lowest = math.MinInt
