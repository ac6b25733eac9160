// Package insight fuses a user's behavior, financial and expense rows into
// one AggregateInsight.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fathom/internal/behavior"
	"github.com/opensource-finance/fathom/internal/budget"
	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/health"
	"github.com/opensource-finance/fathom/internal/metrics"
	"github.com/opensource-finance/fathom/internal/narrative"
	"github.com/opensource-finance/fathom/internal/repository"
	"github.com/opensource-finance/fathom/internal/rules"
)

// ErrUserNotFound is returned when none of the three upstream sources has a
// row for the user.
var ErrUserNotFound = errors.New("user not found")

// NoFinancialData is the details text when no health strategy applies.
const NoFinancialData = "No financial data available"

var tracer = otel.Tracer("fathom-insight")

// Deps are the aggregator's collaborators. Source and Recommender are
// required; Rules, Metrics and Logger may be nil.
type Deps struct {
	Source      domain.SignalReader
	Recommender *budget.Recommender
	Rules       *rules.Engine
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// Aggregator computes insights. It holds no per-request state and is safe
// for concurrent use.
type Aggregator struct {
	source      domain.SignalReader
	recommender *budget.Recommender
	rules       *rules.Engine
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(d Deps) (*Aggregator, error) {
	if d.Source == nil {
		return nil, fmt.Errorf("insight: source is required")
	}
	if d.Recommender == nil {
		return nil, fmt.Errorf("insight: recommender is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source:      d.Source,
		recommender: d.Recommender,
		rules:       d.Rules,
		metrics:     d.Metrics,
		logger:      logger,
	}, nil
}

// rows holds whatever the upstream sources had for one user.
type rows struct {
	behavior  *domain.BehaviorSignal
	financial *domain.FinancialSignal
	expense   *domain.ExpenseRecord
}

func (r rows) empty() bool {
	return r.behavior == nil && r.financial == nil && r.expense == nil
}

// facts are the numbers derived from the expense row.
type facts struct {
	income       float64
	total        float64
	expenseRatio *float64
}

func deriveFacts(rec *domain.ExpenseRecord) facts {
	if rec == nil {
		return facts{}
	}
	f := facts{total: rec.Expenses.Total()}
	f.income = f.total
	if rec.Income != nil && !math.IsNaN(*rec.Income) && !math.IsInf(*rec.Income, 0) {
		f.income = *rec.Income
	}
	if f.income > 0 {
		f.expenseRatio = domain.Float(f.total / f.income)
	}
	return f
}

// healthStrategy returns a result and true when it applies.
type healthStrategy func(r rows, f facts) (domain.HealthResult, bool)

// healthChain is tried in order; the first strategy that applies wins.
var healthChain = []healthStrategy{
	realTimeHealth,
	batchHealth,
	unknownHealth,
}

func realTimeHealth(_ rows, f facts) (domain.HealthResult, bool) {
	if f.income <= 0 || f.total <= 0 {
		return domain.HealthResult{}, false
	}
	return health.ScoreRealTime(f.income, f.total), true
}

func batchHealth(r rows, _ facts) (domain.HealthResult, bool) {
	if r.financial == nil {
		return domain.HealthResult{}, false
	}
	return health.ScoreBatch(health.BatchInputFrom(r.financial)), true
}

func unknownHealth(rows, facts) (domain.HealthResult, bool) {
	return domain.HealthResult{
		FinancialHealth:    domain.HealthUnknown,
		FinancialRiskLevel: domain.RiskUnknown,
		FinancialDetails:   NoFinancialData,
	}, true
}

func resolveHealth(r rows, f facts) domain.HealthResult {
	for _, strategy := range healthChain {
		if res, ok := strategy(r, f); ok {
			return res
		}
	}
	// unreachable: unknownHealth always applies
	return domain.HealthResult{}
}

// GetInsight builds the insight for one user. It returns ErrUserNotFound
// when the user is absent from all three sources; partial data degrades to
// Unknown values.
func (a *Aggregator) GetInsight(ctx context.Context, userID domain.UserID) (*domain.AggregateInsight, error) {
	ctx, span := tracer.Start(ctx, "insight.GetInsight",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	r, err := a.fetch(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if r.empty() {
		span.SetStatus(codes.Error, "user not found")
		return nil, ErrUserNotFound
	}

	ins, err := a.compute(ctx, userID, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("insight.health", string(ins.FinancialInsight.FinancialHealth)),
		attribute.String("insight.score_scale", string(ins.FinancialInsight.Score.Scale)),
		attribute.String("insight.behavior_risk", string(ins.BehaviorInsight.BehaviorRiskLevel)),
	)
	return ins, nil
}

// fetch reads the three rows independently. A not-found row is nil; any
// other error aborts.
func (a *Aggregator) fetch(ctx context.Context, userID domain.UserID) (rows, error) {
	var r rows

	b, err := a.source.GetBehaviorSignal(ctx, userID)
	if err := missing(err); err != nil {
		return rows{}, fmt.Errorf("failed to read behavior signal: %w", err)
	}
	if err == nil {
		r.behavior = b
	}

	f, err := a.source.GetFinancialSignal(ctx, userID)
	if err := missing(err); err != nil {
		return rows{}, fmt.Errorf("failed to read financial signal: %w", err)
	}
	if err == nil {
		r.financial = f
	}

	e, err := a.source.GetExpenseRecord(ctx, userID)
	if err := missing(err); err != nil {
		return rows{}, fmt.Errorf("failed to read expense record: %w", err)
	}
	if err == nil {
		r.expense = e
	}

	return r, nil
}

// missing clears a not-found error so only real failures remain.
func missing(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (a *Aggregator) compute(ctx context.Context, userID domain.UserID, r rows) (*domain.AggregateInsight, error) {
	f := deriveFacts(r.expense)

	healthResult := resolveHealth(r, f)
	behaviorResult := behavior.Reconcile(behavior.ClassifySignal(r.behavior), f.expenseRatio)

	ins := &domain.AggregateInsight{
		UserID:           userID,
		BehaviorInsight:  behaviorResult,
		FinancialInsight: healthResult,
		Income:           f.income,
		TotalExpenses:    f.total,
		InsightText:      narrative.Compose(behaviorResult, healthResult),
	}

	if r.expense != nil {
		rec, err := a.recommender.Recommend(r.expense.Expenses, f.income, healthResult.FinancialHealth)
		switch {
		case errors.Is(err, budget.ErrNoExpenseData):
			// Row present but no amounts: nothing to recommend.
		case errors.Is(err, budget.ErrInvalidAmount):
			a.logger.Warn("skipping recommendation", "user_id", userID, "error", err)
		case err != nil:
			return nil, fmt.Errorf("failed to compute recommendation: %w", err)
		default:
			rec.InsightText = budget.Explain(rec, behaviorResult, healthResult)
			ins.Recommendation = rec
			ins.CurrentExpenses = rec.CurrentExpenses
			ins.RecommendedExpenses = rec.RecommendedExpenses
			ins.ExpenseChanges = rec.Changes
			a.metrics.RecordRecommendation(rec)
		}
	}
	a.metrics.RecordHealth(healthResult)

	advisories, err := a.advise(ctx, userID, r, f, ins)
	if err != nil {
		return nil, err
	}
	ins.Advisories = advisories

	return ins, nil
}

// advise runs the advisory rules and keeps every non-passing result.
func (a *Aggregator) advise(ctx context.Context, userID domain.UserID, r rows, f facts, ins *domain.AggregateInsight) ([]domain.Advisory, error) {
	if a.rules == nil || a.rules.RulesCount() == 0 {
		return nil, nil
	}

	profile := &rules.Profile{
		UserID:        userID,
		Income:        f.income,
		TotalExpenses: f.total,
		ExpenseRatio:  f.expenseRatio,
		Behavior:      ins.BehaviorInsight,
		Health:        ins.FinancialInsight,
	}
	if r.behavior != nil {
		profile.AnomalyRatio = r.behavior.AnomalyRatio
	}
	if r.expense != nil {
		profile.Expenses = r.expense.Expenses
	}

	start := time.Now()
	results, err := a.rules.EvaluateAll(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate advisory rules: %w", err)
	}

	var advisories []domain.Advisory
	for _, res := range results {
		if res.Outcome == domain.RuleOutcomePass {
			continue
		}
		advisories = append(advisories, domain.Advisory{
			RuleID:  res.RuleID,
			Outcome: res.Outcome,
			Score:   res.Score,
			Reason:  res.Reason,
		})
	}

	a.logger.Debug("advisory rules evaluated",
		"user_id", userID,
		"rules", len(results),
		"advisories", len(advisories),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return advisories, nil
}

// ShouldAlert reports whether an insight warrants an alert: behavior risk
// Very High or health Critical.
func ShouldAlert(ins *domain.AggregateInsight) bool {
	if ins == nil {
		return false
	}
	return ins.BehaviorInsight.BehaviorRiskLevel == domain.RiskVeryHigh ||
		ins.FinancialInsight.FinancialHealth == domain.HealthCritical
}

// Outcome maps a GetInsight error to a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrUserNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
