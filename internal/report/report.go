// Package report renders an insight as the plain-text report printed by
// fathomctl.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/opensource-finance/fathom/internal/domain"
)

var (
	colorAccent = lipgloss.Color("#3AA99F")
	colorWarn   = lipgloss.Color("#D14D41")
)

// Write renders ins to w. Styling degrades to plain text when w is not a
// terminal.
func Write(w io.Writer, ins *domain.AggregateInsight) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Foreground(colorAccent)
	warn := r.NewStyle().Foreground(colorWarn)

	var b strings.Builder
	fmt.Fprintf(&b, "User ID: %d\n\n", ins.UserID)

	if len(ins.CurrentExpenses) > 0 {
		b.WriteString(header.Render("Current Expenses:") + "\n")
		writeBreakdown(&b, ins.CurrentExpenses)
		b.WriteString("\n")
	}

	bi := ins.BehaviorInsight
	b.WriteString(header.Render("Behavior Insight:") + "\n")
	fmt.Fprintf(&b, "  Type: %s\n", bi.BehaviorType)
	fmt.Fprintf(&b, "  Risk Level: %s\n", risk(warn, bi.BehaviorRiskLevel))
	fmt.Fprintf(&b, "  Details: %s\n\n", bi.BehaviorDetails)

	fi := ins.FinancialInsight
	b.WriteString(header.Render("Financial Insight:") + "\n")
	fmt.Fprintf(&b, "  Health: %s\n", fi.FinancialHealth)
	fmt.Fprintf(&b, "  Risk Level: %s\n", risk(warn, fi.FinancialRiskLevel))
	if fi.Score.Numeric() {
		fmt.Fprintf(&b, "  Score: %d (%s)\n", fi.Score.Value, fi.Score.Scale)
	} else {
		b.WriteString("  Score: n/a\n")
	}
	fmt.Fprintf(&b, "  Details: %s\n\n", fi.FinancialDetails)

	if len(ins.RecommendedExpenses) > 0 {
		b.WriteString(header.Render("Recommended Budget for Next Month:") + "\n")
		writeBreakdown(&b, ins.RecommendedExpenses)
		b.WriteString("\n")
	}

	if len(ins.Advisories) > 0 {
		b.WriteString(header.Render("Advisories:") + "\n")
		for _, a := range ins.Advisories {
			fmt.Fprintf(&b, "  - %s %s: %s\n", a.RuleID, a.Outcome, a.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString(header.Render("Recommendation Insight Text:") + "\n")
	if ins.Recommendation != nil && ins.Recommendation.InsightText != "" {
		b.WriteString(ins.Recommendation.InsightText)
	} else {
		b.WriteString(ins.InsightText)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBreakdown(b *strings.Builder, e domain.ExpenseBreakdown) {
	for _, c := range e.Keys() {
		fmt.Fprintf(b, "  - %s: %.2f USD\n", c, e[c])
	}
}

func risk(warn lipgloss.Style, level domain.RiskLevel) string {
	if level == domain.RiskHigh || level == domain.RiskVeryHigh {
		return warn.Render(string(level))
	}
	return string(level)
}
