package budget

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fathom/internal/domain"
)

const tolerance = 1e-9

func TestRecommendEmpty(t *testing.T) {
	r := NewRecommender(DefaultPolicy())
	_, err := r.Recommend(domain.ExpenseBreakdown{}, 1000, domain.HealthHealthy)
	if !errors.Is(err, ErrNoExpenseData) {
		t.Errorf("expected ErrNoExpenseData, got %v", err)
	}
	_, err = r.Recommend(nil, 1000, domain.HealthHealthy)
	if !errors.Is(err, ErrNoExpenseData) {
		t.Errorf("expected ErrNoExpenseData for nil breakdown, got %v", err)
	}
}

func TestRecommendWorkedExamples(t *testing.T) {
	r := NewRecommender(DefaultPolicy())

	tests := []struct {
		name       string
		current    domain.ExpenseBreakdown
		income     float64
		label      domain.HealthLabel
		want       domain.ExpenseBreakdown
		wantScaled bool
	}{
		{
			name:    "on target",
			current: domain.ExpenseBreakdown{domain.CategoryRent: 1000},
			income:  2000,
			label:   domain.HealthHealthy,
			want:    domain.ExpenseBreakdown{domain.CategoryRent: 1000},
		},
		{
			name: "capped both ways",
			current: domain.ExpenseBreakdown{
				domain.CategoryRent:    1000,
				domain.CategorySavings: 100,
			},
			income: 1000,
			label:  domain.HealthModerate,
			want: domain.ExpenseBreakdown{
				domain.CategoryRent:    750,
				domain.CategorySavings: 193.75,
			},
		},
		{
			name: "income ceiling",
			current: domain.ExpenseBreakdown{
				domain.CategoryRent:      800,
				domain.CategoryEatingOut: 400,
			},
			income: 600,
			label:  domain.HealthAtRisk,
			want: domain.ExpenseBreakdown{
				domain.CategoryRent:      461.54,
				domain.CategoryEatingOut: 138.46,
			},
			wantScaled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Recommend(tt.current, tt.income, tt.label)
			if err != nil {
				t.Fatalf("recommend failed: %v", err)
			}
			if len(got.RecommendedExpenses) != len(tt.want) {
				t.Fatalf("expected %d categories, got %v", len(tt.want), got.RecommendedExpenses)
			}
			for c, want := range tt.want {
				if math.Abs(got.RecommendedExpenses[c]-want) > tolerance {
					t.Errorf("%s: expected %.2f, got %v", c, want, got.RecommendedExpenses[c])
				}
			}
			if got.ScaledToIncome != tt.wantScaled {
				t.Errorf("expected scaled=%v, got %v", tt.wantScaled, got.ScaledToIncome)
			}
			if got.TotalExpenses != tt.current.Total() {
				t.Errorf("expected total %.2f, got %.2f", tt.current.Total(), got.TotalExpenses)
			}
		})
	}
}

func TestRecommendDoesNotMutateInput(t *testing.T) {
	current := domain.ExpenseBreakdown{domain.CategoryEatingOut: 300, domain.CategorySavings: 50}
	_, err := NewRecommender(DefaultPolicy()).Recommend(current, 500, domain.HealthAtRisk)
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	if current[domain.CategoryEatingOut] != 300 || current[domain.CategorySavings] != 50 {
		t.Errorf("input mutated: %v", current)
	}
}

func TestNudge(t *testing.T) {
	current := domain.ExpenseBreakdown{
		domain.CategoryRent:        500,
		domain.CategoryEatingOut:   200,
		domain.CategoryTravel:      200,
		domain.CategorySavings:     100,
		domain.CategoryInvestments: 0,
	}

	tests := []struct {
		label domain.HealthLabel
		want  domain.ExpenseBreakdown
	}{
		{domain.HealthHealthy, domain.ExpenseBreakdown{
			domain.CategoryRent: 500, domain.CategoryEatingOut: 200, domain.CategoryTravel: 200,
			domain.CategorySavings: 150, domain.CategoryInvestments: 50,
		}},
		{domain.HealthModerate, domain.ExpenseBreakdown{
			domain.CategoryRent: 500, domain.CategoryEatingOut: 140, domain.CategoryTravel: 200,
			domain.CategorySavings: 150, domain.CategoryInvestments: 0,
		}},
		{domain.HealthAtRisk, domain.ExpenseBreakdown{
			domain.CategoryRent: 500, domain.CategoryEatingOut: 100, domain.CategoryTravel: 100,
			domain.CategorySavings: 200, domain.CategoryInvestments: 0,
		}},
		{domain.HealthCritical, domain.ExpenseBreakdown{
			domain.CategoryRent: 500, domain.CategoryEatingOut: 100, domain.CategoryTravel: 100,
			domain.CategorySavings: 200, domain.CategoryInvestments: 0,
		}},
		{domain.HealthUnknown, domain.ExpenseBreakdown{
			domain.CategoryRent: 500, domain.CategoryEatingOut: 140, domain.CategoryTravel: 200,
			domain.CategorySavings: 150, domain.CategoryInvestments: 0,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			got := nudge(current, tt.label)
			for c, want := range tt.want {
				if math.Abs(got[c]-want) > tolerance {
					t.Errorf("%s: expected %v, got %v", c, want, got[c])
				}
			}
			if len(got) != len(current) {
				t.Errorf("nudge changed key set: %v", got)
			}
		})
	}
}

func TestNudgeNeverAddsCategories(t *testing.T) {
	current := domain.ExpenseBreakdown{domain.CategoryRent: 900}
	for _, label := range []domain.HealthLabel{domain.HealthHealthy, domain.HealthModerate, domain.HealthAtRisk} {
		got := nudge(current, label)
		if len(got) != 1 || got[domain.CategoryRent] != 900 {
			t.Errorf("%s: unexpected nudge result %v", label, got)
		}
	}
}

func TestTrimOvershoot(t *testing.T) {
	cents := map[domain.Category]decimal.Decimal{
		domain.CategoryRent:      decimal.RequireFromString("10.00"),
		domain.CategoryGroceries: decimal.RequireFromString("5.00"),
		domain.CategoryFitness:   decimal.RequireFromString("0.00"),
	}
	order := []domain.Category{domain.CategoryFitness, domain.CategoryGroceries, domain.CategoryRent}

	trimOvershoot(cents, decimal.RequireFromString("0.03"), order)

	if !cents[domain.CategoryRent].Equal(decimal.RequireFromString("9.98")) {
		t.Errorf("expected rent 9.98, got %s", cents[domain.CategoryRent])
	}
	if !cents[domain.CategoryGroceries].Equal(decimal.RequireFromString("4.99")) {
		t.Errorf("expected groceries 4.99, got %s", cents[domain.CategoryGroceries])
	}
	if !cents[domain.CategoryFitness].IsZero() {
		t.Errorf("expected fitness untouched, got %s", cents[domain.CategoryFitness])
	}
}

func TestRecommendZeroIncome(t *testing.T) {
	got, err := NewRecommender(DefaultPolicy()).Recommend(domain.ExpenseBreakdown{
		domain.CategoryRent:    400,
		domain.CategorySavings: 10,
	}, 0, domain.HealthModerate)
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}
	for c, v := range got.RecommendedExpenses {
		if v != 0 {
			t.Errorf("%s: expected 0 with zero income, got %v", c, v)
		}
	}
	if !got.ScaledToIncome {
		t.Error("expected ceiling to apply with zero income")
	}
}

// randomBreakdown draws a breakdown over a random subset of categories.
func randomBreakdown(rng *rand.Rand) domain.ExpenseBreakdown {
	b := domain.ExpenseBreakdown{}
	for _, c := range domain.AllCategories() {
		if rng.Intn(3) == 0 {
			continue
		}
		if rng.Intn(8) == 0 {
			b[c] = 0
			continue
		}
		b[c] = math.Round(rng.Float64()*200000) / 100
	}
	if len(b) == 0 {
		b[domain.CategoryGroceries] = 123.45
	}
	return b
}

var propertyLabels = []domain.HealthLabel{
	domain.HealthHealthy,
	domain.HealthModerate,
	domain.HealthAtRisk,
	domain.HealthCritical,
	domain.HealthUnknown,
	"",
}

func TestRecommendProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRecommender(DefaultPolicy())

	for i := 0; i < 500; i++ {
		current := randomBreakdown(rng)
		income := math.Round(rng.Float64()*1500000) / 100
		if i%25 == 0 {
			income = 0
		}
		label := propertyLabels[rng.Intn(len(propertyLabels))]

		got, err := r.Recommend(current, income, label)
		if err != nil {
			t.Fatalf("case %d: recommend failed: %v", i, err)
		}

		if len(got.RecommendedExpenses) != len(current) {
			t.Fatalf("case %d: key count %d != %d", i, len(got.RecommendedExpenses), len(current))
		}
		for c := range current {
			if _, ok := got.RecommendedExpenses[c]; !ok {
				t.Fatalf("case %d: category %s missing from recommendation", i, c)
			}
		}

		total := got.RecommendedExpenses.Total()
		if total > income+1e-2 {
			t.Fatalf("case %d: total %.4f exceeds income %.2f", i, total, income)
		}

		for c, v := range got.RecommendedExpenses {
			if v < 0 {
				t.Fatalf("case %d: %s negative: %v", i, c, v)
			}
			if cents := v * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
				t.Fatalf("case %d: %s not rounded to cents: %v", i, c, v)
			}
		}

		again, err := r.Recommend(got.RecommendedExpenses, income, label)
		if err != nil {
			t.Fatalf("case %d: second pass failed: %v", i, err)
		}
		if again.RecommendedExpenses.Total() > income+1e-2 {
			t.Fatalf("case %d: second pass total %.4f exceeds income %.2f", i, again.RecommendedExpenses.Total(), income)
		}
	}
}

func TestReallocateCap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := DefaultPolicy()

	for i := 0; i < 500; i++ {
		current := randomBreakdown(rng)
		income := math.Round(rng.Float64()*1500000) / 100
		label := propertyLabels[rng.Intn(len(propertyLabels))]

		nudged := nudge(current, label)
		got := reallocate(nudged, income, p)

		for c, before := range nudged {
			after := got[c]
			if math.Abs(after-before) > p.MaxChange*before+1e-6 {
				t.Fatalf("case %d: %s moved from %.4f to %.4f, beyond cap", i, c, before, after)
			}
		}
		if len(got) != len(nudged) {
			t.Fatalf("case %d: reallocation changed key set", i)
		}
	}
}

func TestReallocateUngroupedCategory(t *testing.T) {
	nudged := domain.ExpenseBreakdown{"Pets": 80, domain.CategoryRent: 100}
	got := reallocate(nudged, 1000, DefaultPolicy())
	if got["Pets"] != 80 {
		t.Errorf("ungrouped category changed: %v", got["Pets"])
	}
	if got[domain.CategoryRent] != 125 {
		t.Errorf("expected rent capped at 125, got %v", got[domain.CategoryRent])
	}
}

func TestChanges(t *testing.T) {
	current := domain.ExpenseBreakdown{domain.CategoryRent: 1000, domain.CategorySavings: 0, domain.CategoryTravel: 300}
	recommended := domain.ExpenseBreakdown{domain.CategoryRent: 750, domain.CategorySavings: 40, domain.CategoryTravel: 300}

	got := Changes(current, recommended)

	if rent := got[domain.CategoryRent]; rent.ChangeAmount != -250 || rent.ChangePercent != -25 {
		t.Errorf("unexpected rent change: %+v", rent)
	}
	if savings := got[domain.CategorySavings]; savings.ChangePercent != 0 || savings.ChangeAmount != 40 {
		t.Errorf("unexpected savings change: %+v", savings)
	}
	if travel := got[domain.CategoryTravel]; travel.ChangeAmount != 0 || travel.Current != 300 {
		t.Errorf("unexpected travel change: %+v", travel)
	}
}

func TestExplain(t *testing.T) {
	r := NewRecommender(DefaultPolicy())
	rec, err := r.Recommend(domain.ExpenseBreakdown{
		domain.CategoryRent:    1000,
		domain.CategorySavings: 100,
	}, 1000, domain.HealthModerate)
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	text := Explain(rec,
		domain.BehaviorResult{BehaviorType: "Stable", BehaviorRiskLevel: domain.RiskLow},
		domain.HealthResult{FinancialHealth: domain.HealthModerate, Score: domain.RealTimeScore(2)},
	)

	for _, want := range []string{
		"Hello! Here's your personalized financial insight for next month:\n",
		"- Spending behavior: 'Stable' (Risk Level: Low)\n",
		"- Financial health: 'Moderate' (Score: 2)\n",
		"- Total Income: $1000.00 USD\n",
		"- Total Expenses: $1100.00 USD\n",
		"- Recommended Budget: $943.75 USD (within income limit)\n\n",
		"- Rent (USD): decrease from 1000.00 USD to 750.00 USD (-25.0%) to adjust proportion to match financial health targets.",
		"- Savings (USD): increase from 100.00 USD to 193.75 USD (+93.7%) to increase savings or investment focus.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("explanation missing %q\n%s", want, text)
		}
	}
	if strings.Contains(text, "adjusted to fit within your income") {
		t.Error("unexpected ceiling note")
	}
	if !strings.HasSuffix(text, "\n\nThese recommendations aim to help you balance your needs, wants, and savings while keeping financial health stable.") {
		t.Errorf("unexpected closing line:\n%s", text)
	}
}

func TestExplainCeilingAndWantsNote(t *testing.T) {
	r := NewRecommender(DefaultPolicy())
	rec, err := r.Recommend(domain.ExpenseBreakdown{
		domain.CategoryRent:      800,
		domain.CategoryEatingOut: 400,
	}, 600, domain.HealthAtRisk)
	if err != nil {
		t.Fatalf("recommend failed: %v", err)
	}

	text := Explain(rec, domain.BehaviorResult{}, domain.HealthResult{})

	for _, want := range []string{
		"⚠️ Note: Your recommended budget has been adjusted to fit within your income.\n\nBased on",
		"- Eating Out (USD): decrease from 400.00 USD to 138.46 USD",
		"to reduce discretionary spending.",
		"* Note: Eating Out (USD) makes up more than 20% of your total expenses, consider moderating it.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("explanation missing %q\n%s", want, text)
		}
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(domain.BudgetConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != DefaultPolicy() {
		t.Errorf("expected default policy, got %+v", p)
	}

	p, err = PolicyFromConfig(domain.BudgetConfig{MaxChangePercent: 0.1, NeedsShare: 0.6, WantsShare: 0.2, SavingsShare: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MaxChange != 0.1 || p.NeedsShare != 0.6 {
		t.Errorf("config not applied: %+v", p)
	}

	for _, cfg := range []domain.BudgetConfig{
		{MaxChangePercent: 1.5},
		{NeedsShare: 0.8, WantsShare: 0.3, SavingsShare: 0.2},
		{NeedsShare: -0.1, WantsShare: 0.3, SavingsShare: 0.2},
	} {
		if _, err := PolicyFromConfig(cfg); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("expected ErrInvalidPolicy for %+v, got %v", cfg, err)
		}
	}
}

func TestGroupOf(t *testing.T) {
	tests := map[domain.Category]Group{
		domain.CategoryRent:                 GroupNeeds,
		domain.CategoryEducation:            GroupNeeds,
		domain.CategorySubscriptionServices: GroupWants,
		domain.CategoryMiscellaneous:        GroupWants,
		domain.CategoryInvestments:          GroupSavings,
		"Pets":                              GroupNone,
	}
	for c, want := range tests {
		if got := GroupOf(c); got != want {
			t.Errorf("%s: expected %q, got %q", c, want, got)
		}
	}
}

func TestRecommendRejectsInvalidAmounts(t *testing.T) {
	r := NewRecommender(DefaultPolicy())

	tests := []struct {
		name    string
		current domain.ExpenseBreakdown
		income  float64
	}{
		{"InfiniteAmount", domain.ExpenseBreakdown{domain.CategoryRent: math.Inf(1)}, 100},
		{"NaNAmount", domain.ExpenseBreakdown{domain.CategoryRent: math.NaN()}, 100},
		{"NegativeAmount", domain.ExpenseBreakdown{domain.CategoryRent: -5}, 100},
		{"InfiniteIncome", domain.ExpenseBreakdown{domain.CategoryRent: 100}, math.Inf(1)},
		{"NegativeInfiniteIncome", domain.ExpenseBreakdown{domain.CategoryRent: 100}, math.Inf(-1)},
		{"NaNIncome", domain.ExpenseBreakdown{domain.CategoryRent: 100}, math.NaN()},
		{"NegativeIncome", domain.ExpenseBreakdown{domain.CategoryRent: 100}, -1},
		{"OverflowingAmounts", domain.ExpenseBreakdown{
			domain.CategoryRent:    math.MaxFloat64,
			domain.CategorySavings: math.MaxFloat64,
		}, math.MaxFloat64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Recommend(tt.current, tt.income, domain.HealthModerate)
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if got != nil {
				t.Errorf("expected no result, got %+v", got)
			}
		})
	}
}
