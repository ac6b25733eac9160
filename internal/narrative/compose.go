// Package narrative turns behavior and health verdicts into a fixed,
// deterministic paragraph.
package narrative

import (
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

var behaviorSentences = map[domain.RiskLevel]string{
	domain.RiskLow:    "The user demonstrates stable and consistent spending behavior with minimal behavioral risk.",
	domain.RiskMedium: "The user's spending behavior shows moderate variability, indicating occasional inconsistencies that may affect financial stability.",
	domain.RiskHigh:   "The user's spending behavior is highly inconsistent, reflecting elevated behavioral risk and irregular financial patterns.",
}

const behaviorOther = "The user's spending behavior could not be clearly classified due to insufficient or ambiguous data."

var healthSentences = map[domain.HealthLabel]string{
	domain.HealthHealthy:  "From a financial perspective, the user is in a healthy condition, supported by balanced spending and adequate financial reserves.",
	domain.HealthModerate: "Financially, the user is in a moderate condition, where overall stability is present but there is room for improvement in financial management.",
	domain.HealthAtRisk:   "From a financial standpoint, the user is at risk, suggesting potential challenges in sustaining long-term financial well-being.",
}

const healthOther = "The user's overall financial condition could not be conclusively determined."

// crossSignal fires when behavior and financial risk disagree. Every row is
// checked; more than one may apply.
var crossSignal = []struct {
	behavior  domain.RiskLevel
	financial domain.RiskLevel
	sentence  string
}{
	{
		behavior:  domain.RiskLow,
		financial: domain.RiskHigh,
		sentence:  "Despite disciplined spending behavior, financial indicators suggest underlying risks that may stem from income constraints or high fixed expenses.",
	},
	{
		behavior:  domain.RiskHigh,
		financial: domain.RiskLow,
		sentence:  "Although current financial health appears stable, inconsistent spending behavior may pose risks if left unaddressed.",
	},
}

// scoreBands are checked in order; the first whose minimum is reached wins.
var scoreBands = []struct {
	min      int
	sentence string
}{
	{75, "The financial health score reflects strong financial resilience and effective resource allocation."},
	{50, "The financial health score indicates an average level of financial resilience with moderate exposure to financial stress."},
}

const scoreLow = "The financial health score highlights significant vulnerability, emphasizing the need for corrective financial actions."

// Compose builds the narrative from the final behavior and health verdicts.
func Compose(behavior domain.BehaviorResult, health domain.HealthResult) string {
	parts := make([]string, 0, 6)

	parts = append(parts, lookup(behaviorSentences, behavior.BehaviorRiskLevel, behaviorOther))
	parts = append(parts, lookup(healthSentences, health.FinancialHealth, healthOther))

	for _, c := range crossSignal {
		if behavior.BehaviorRiskLevel == c.behavior && health.FinancialRiskLevel == c.financial {
			parts = append(parts, c.sentence)
		}
	}

	// An unscored result carries Value 0 and lands in the lowest band.
	parts = append(parts, scoreSentence(health.Score.Value))

	if health.FinancialDetails != "" {
		parts = append(parts, health.FinancialDetails)
	}

	return strings.Join(parts, " ")
}

func scoreSentence(score int) string {
	for _, b := range scoreBands {
		if score >= b.min {
			return b.sentence
		}
	}
	return scoreLow
}

func lookup[K comparable](m map[K]string, key K, fallback string) string {
	if s, ok := m[key]; ok {
		return s
	}
	return fallback
}
