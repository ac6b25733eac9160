package domain

// RuleConfig is an operator-defined advisory rule over a user's fused
// profile. The CEL expression yields a score, which the bands grade.
type RuleConfig struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Expression  string     `json:"expression"` // must yield bool, int or double
	Bands       []RuleBand `json:"bands"`
	Enabled     bool       `json:"enabled"`
}

// RuleBand maps scores in [LowerLimit, UpperLimit) to an outcome. A nil
// LowerLimit means 0, a nil UpperLimit is unbounded.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason"`
}

// RuleResult is one rule evaluated for one user.
type RuleResult struct {
	RuleID    string  `json:"ruleId"`
	UserID    UserID  `json:"userId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	ProcessMs int64   `json:"processMs"`
}

// Rule outcomes. Everything except RuleOutcomePass becomes an advisory.
const (
	RuleOutcomePass   = ".pass"
	RuleOutcomeReview = ".review"
	RuleOutcomeFail   = ".fail"
	RuleOutcomeError  = ".err"
)

// ValidRuleOutcome reports whether a band may use outcome. RuleOutcomeError
// is reserved for evaluation failures.
func ValidRuleOutcome(outcome string) bool {
	switch outcome {
	case RuleOutcomePass, RuleOutcomeReview, RuleOutcomeFail:
		return true
	}
	return false
}
