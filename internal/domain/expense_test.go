package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"Rent", CategoryRent, false},
		{"Eating Out (USD)", CategoryEatingOut, false},
		{"  eating out  ", CategoryEatingOut, false},
		{"SUBSCRIPTION SERVICES (USD)", CategorySubscriptionServices, false},
		{"Income (USD)", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCategory failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategoryNames(t *testing.T) {
	if got := CategoryOnlineShopping.Column(); got != "online_shopping" {
		t.Errorf("Column = %q", got)
	}
	if got := CategoryEatingOut.Header(); got != "Eating Out (USD)" {
		t.Errorf("Header = %q", got)
	}
	for _, c := range AllCategories() {
		back, err := ParseCategory(c.Header())
		if err != nil || back != c {
			t.Errorf("header round trip for %q gave %q, %v", c, back, err)
		}
	}
}

func TestAllCategoriesIsACopy(t *testing.T) {
	cats := AllCategories()
	if len(cats) != 12 {
		t.Fatalf("got %d categories, want 12", len(cats))
	}
	cats[0] = "Mutated"
	if AllCategories()[0] != CategoryRent {
		t.Error("AllCategories exposes its backing array")
	}
}

func TestExpenseBreakdown(t *testing.T) {
	b := ExpenseBreakdown{
		CategoryTravel:    100,
		CategoryRent:      1000,
		"Pet Care":        50,
		CategoryGroceries: 250.5,
	}

	t.Run("Total", func(t *testing.T) {
		if got := b.Total(); got != 1400.5 {
			t.Errorf("Total = %v, want 1400.5", got)
		}
		var empty ExpenseBreakdown
		if empty.Total() != 0 {
			t.Error("nil breakdown should total 0")
		}
	})

	t.Run("Keys", func(t *testing.T) {
		want := []Category{CategoryRent, CategoryGroceries, CategoryTravel, "Pet Care"}
		if got := b.Keys(); !reflect.DeepEqual(got, want) {
			t.Errorf("Keys = %v, want %v", got, want)
		}
	})

	t.Run("Clone", func(t *testing.T) {
		c := b.Clone()
		c[CategoryRent] = 1
		if b[CategoryRent] != 1000 {
			t.Error("Clone shares storage with the original")
		}
		var nilBreakdown ExpenseBreakdown
		if nilBreakdown.Clone() != nil {
			t.Error("Clone of nil should be nil")
		}
	})
}

func TestHealthResultJSON(t *testing.T) {
	in := HealthResult{
		FinancialHealth:    HealthModerate,
		Score:              BatchScore(2),
		FinancialRiskLevel: RiskMedium,
		FinancialDetails:   "details",
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if flat["health_score"] != float64(2) || flat["score_scale"] != "batch" {
		t.Errorf("flattened score = %v", flat)
	}

	var out HealthResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	unscored, _ := json.Marshal(HealthResult{FinancialHealth: HealthUnknown})
	var m map[string]any
	json.Unmarshal(unscored, &m)
	if _, ok := m["score_scale"]; ok {
		t.Error("unscored result should omit score_scale")
	}
	if m["health_score"] != float64(0) {
		t.Errorf("unscored health_score = %v, want 0", m["health_score"])
	}
}
