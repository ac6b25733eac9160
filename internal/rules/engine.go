// Package rules provides the CEL-Go based advisory rule engine. Rules are
// operator-defined expressions over a user's fused financial profile.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Evaluation limits for operator-supplied expressions.
const (
	maxEvalCost         = 10_000
	interruptCheckEvery = 100
)

// Engine is the CEL-based rule evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("income", cel.DoubleType),
		cel.Variable("total_expenses", cel.DoubleType),
		cel.Variable("expense_ratio", cel.DoubleType),
		cel.Variable("has_expense_ratio", cel.BoolType),
		cel.Variable("savings_rate", cel.DoubleType),
		cel.Variable("health_score", cel.IntType),
		cel.Variable("score_scale", cel.StringType),
		cel.Variable("financial_health", cel.StringType),
		cel.Variable("financial_risk", cel.StringType),
		cel.Variable("behavior_type", cel.StringType),
		cel.Variable("behavior_risk", cel.StringType),
		cel.Variable("anomaly_ratio", cel.DoubleType),
		cel.Variable("expenses", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Profile is the fused per-user view rules are evaluated against.
type Profile struct {
	UserID        domain.UserID
	Income        float64
	TotalExpenses float64
	ExpenseRatio  *float64
	AnomalyRatio  float64
	Behavior      domain.BehaviorResult
	Health        domain.HealthResult
	Expenses      domain.ExpenseBreakdown
}

func (p *Profile) activation() map[string]any {
	var ratio, savings float64
	if p.ExpenseRatio != nil {
		ratio = *p.ExpenseRatio
	}
	if p.Income > 0 {
		savings = (p.Income - p.TotalExpenses) / p.Income
	}

	expenses := make(map[string]float64, len(p.Expenses))
	for c, v := range p.Expenses {
		expenses[string(c)] = v
	}

	return map[string]any{
		"income":            p.Income,
		"total_expenses":    p.TotalExpenses,
		"expense_ratio":     ratio,
		"has_expense_ratio": p.ExpenseRatio != nil,
		"savings_rate":      savings,
		"health_score":      int64(p.Health.Score.Value),
		"score_scale":       string(p.Health.Score.Scale),
		"financial_health":  string(p.Health.FinancialHealth),
		"financial_risk":    string(p.Health.FinancialRiskLevel),
		"behavior_type":     p.Behavior.BehaviorType,
		"behavior_risk":     string(p.Behavior.BehaviorRiskLevel),
		"anomaly_ratio":     p.AnomalyRatio,
		"expenses":          expenses,
	}
}

// EvaluateAll evaluates every loaded rule for profile, at most maxWorkers at
// a time. Results are ordered by rule ID. A rule that fails at runtime yields
// RuleOutcomeError rather than failing the whole evaluation.
func (e *Engine) EvaluateAll(ctx context.Context, profile *Profile) ([]domain.RuleResult, error) {
	e.mu.RLock()
	loaded := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		loaded = append(loaded, rule)
	}
	e.mu.RUnlock()

	if len(loaded) == 0 {
		return nil, nil
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Config.ID < loaded[j].Config.ID })

	activation := profile.activation()
	results := make([]domain.RuleResult, len(loaded))

	var g errgroup.Group
	g.SetLimit(e.maxWorkers)
	for i, rule := range loaded {
		g.Go(func() error {
			results[i] = evaluate(ctx, rule, activation, profile.UserID)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func evaluate(ctx context.Context, rule *CompiledRule, activation map[string]any, userID domain.UserID) domain.RuleResult {
	start := time.Now()
	res := domain.RuleResult{RuleID: rule.Config.ID, UserID: userID}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		res.Outcome = domain.RuleOutcomeError
		res.Reason = fmt.Sprintf("evaluation error: %v", err)
	} else {
		res.Score = toScore(out)
		res.Outcome, res.Reason = matchBand(res.Score, rule.Config.Bands)
	}
	res.ProcessMs = time.Since(start).Milliseconds()
	return res
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band with lower <= score < upper. A nil lower is
// treated as 0 and a nil upper as unbounded. No match means pass.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Outcome, band.Reason
		}
	}

	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules replaces all loaded rules. On a compile error the previous
// rule set stays loaded.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if err := validateBands(cfg.Bands); err != nil {
		return nil, fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	switch out := ast.OutputType(); out {
	case cel.BoolType, cel.DoubleType, cel.IntType:
	default:
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, out)
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(maxEvalCost),
		cel.InterruptCheckFrequency(interruptCheckEvery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// validateBands rejects unknown outcomes and empty ranges.
func validateBands(bands []domain.RuleBand) error {
	for i, b := range bands {
		if !domain.ValidRuleOutcome(b.Outcome) {
			return fmt.Errorf("band %d: unknown outcome %q", i, b.Outcome)
		}
		lower := 0.0
		if b.LowerLimit != nil {
			lower = *b.LowerLimit
		}
		if b.UpperLimit != nil && *b.UpperLimit <= lower {
			return fmt.Errorf("band %d: upper limit %v not above lower limit %v", i, *b.UpperLimit, lower)
		}
	}
	return nil
}
