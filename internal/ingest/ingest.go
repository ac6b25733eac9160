// Package ingest loads the upstream CSV tables into the repository.
//
// Three layouts are understood: the behavior insight table (keyed by
// client_id), the financial health table and the expense table (both keyed
// by ID, expense columns carry a " (USD)" suffix).
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Kind identifies an upstream table layout.
type Kind string

const (
	KindBehavior  Kind = "behavior"
	KindFinancial Kind = "financial"
	KindExpenses  Kind = "expenses"
)

// ErrUnknownLayout is returned when a header matches none of the layouts.
var ErrUnknownLayout = errors.New("unrecognized CSV layout")

const incomeHeader = "Income" + domain.CurrencySuffix

// Writer is the repository surface the importer needs.
type Writer interface {
	SaveBehaviorSignal(ctx context.Context, s *domain.BehaviorSignal) error
	SaveFinancialSignal(ctx context.Context, s *domain.FinancialSignal) error
	SaveExpenseRecord(ctx context.Context, rec *domain.ExpenseRecord) error
}

// Invalidator drops cached rows for a user after an import.
type Invalidator interface {
	Invalidate(ctx context.Context, userID domain.UserID) error
}

// Stats summarizes one import.
type Stats struct {
	Kind     Kind `json:"kind"`
	Rows     int  `json:"rows"`
	Imported int  `json:"imported"`
	Skipped  int  `json:"skipped"`
}

// Importer writes parsed rows through a Writer.
type Importer struct {
	w      Writer
	inv    Invalidator
	logger *slog.Logger
}

// NewImporter creates an importer. inv may be nil.
func NewImporter(w Writer, inv Invalidator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{w: w, inv: inv, logger: logger}
}

// ImportFile imports one CSV file, detecting its layout from the header.
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer file.Close()

	return im.Import(ctx, file)
}

// Import reads a CSV stream. Rows that fail to parse or validate are
// logged and skipped; a missing required column fails the whole import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read header: %w", err)
	}

	kind, err := DetectKind(header)
	if err != nil {
		return Stats{}, err
	}

	cols := indexColumns(header)
	save, err := im.rowSaver(kind, header, cols)
	if err != nil {
		return Stats{Kind: kind}, err
	}

	stats := Stats{Kind: kind}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			stats.Skipped++
			im.logger.Warn("skipping malformed row", "kind", kind, "row", stats.Rows, "error", err)
			continue
		}

		id, err := save(ctx, row{cols: cols, record: record})
		if err != nil {
			stats.Skipped++
			im.logger.Warn("skipping row", "kind", kind, "row", stats.Rows, "error", err)
			continue
		}
		stats.Imported++

		if im.inv != nil {
			if err := im.inv.Invalidate(ctx, id); err != nil {
				im.logger.Warn("cache invalidation failed", "user_id", id, "error", err)
			}
		}
	}

	im.logger.Info("import finished",
		"kind", kind,
		"rows", stats.Rows,
		"imported", stats.Imported,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// DetectKind infers the layout from a header row.
func DetectKind(header []string) (Kind, error) {
	cols := indexColumns(header)
	switch {
	case has(cols, "client_id"):
		return KindBehavior, nil
	case has(cols, "savings_rate") || has(cols, "financial_health"):
		return KindFinancial, nil
	}
	for _, h := range header {
		if _, err := domain.ParseCategory(h); err == nil {
			return KindExpenses, nil
		}
	}
	return "", ErrUnknownLayout
}

type saver func(ctx context.Context, r row) (domain.UserID, error)

func (im *Importer) rowSaver(kind Kind, header []string, cols map[string]int) (saver, error) {
	switch kind {
	case KindBehavior:
		if err := require(cols, "client_id", "dominant_spending_intensity", "anomaly_ratio"); err != nil {
			return nil, err
		}
		return func(ctx context.Context, r row) (domain.UserID, error) {
			s, err := parseBehavior(r)
			if err != nil {
				return 0, err
			}
			return s.UserID, im.w.SaveBehaviorSignal(ctx, s)
		}, nil

	case KindFinancial:
		if err := require(cols, "id"); err != nil {
			return nil, err
		}
		return func(ctx context.Context, r row) (domain.UserID, error) {
			s, err := parseFinancial(r)
			if err != nil {
				return 0, err
			}
			return s.UserID, im.w.SaveFinancialSignal(ctx, s)
		}, nil

	default:
		if err := require(cols, "id"); err != nil {
			return nil, err
		}
		categories := categoryColumns(header)
		return func(ctx context.Context, r row) (domain.UserID, error) {
			rec, err := parseExpenses(r, categories)
			if err != nil {
				return 0, err
			}
			return rec.UserID, im.w.SaveExpenseRecord(ctx, rec)
		}, nil
	}
}

// row gives named access to one CSV record.
type row struct {
	cols   map[string]int
	record []string
}

func (r row) get(name string) string {
	i, ok := r.cols[strings.ToLower(name)]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func parseBehavior(r row) (*domain.BehaviorSignal, error) {
	id, err := parseUserID(r.get("client_id"))
	if err != nil {
		return nil, err
	}
	ratio, err := parseFloat(r.get("anomaly_ratio"))
	if err != nil {
		return nil, fmt.Errorf("anomaly_ratio: %w", err)
	}
	if ratio == nil {
		ratio = domain.Float(0)
	}

	hasAnomaly := *ratio > 0
	if v := r.get("has_anomaly"); v != "" {
		if hasAnomaly, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("has_anomaly: %w", err)
		}
	}

	intensity := domain.Intensity(r.get("dominant_spending_intensity"))
	if intensity == "" {
		intensity = domain.IntensityUnknown
	}

	return &domain.BehaviorSignal{
		UserID:            id,
		DominantIntensity: intensity,
		AnomalyRatio:      *ratio,
		HasAnomaly:        hasAnomaly,
		BehaviorType:      r.get("behavior_type"),
		BehaviorRiskLevel: domain.RiskLevel(r.get("behavior_risk_level")),
		Justification:     r.get("behavior_justification"),
	}, nil
}

func parseFinancial(r row) (*domain.FinancialSignal, error) {
	id, err := parseUserID(r.get("id"))
	if err != nil {
		return nil, err
	}

	s := &domain.FinancialSignal{
		UserID:              id,
		FinancialHealth:     domain.HealthLabel(r.get("financial_health")),
		FinancialRiskLevel:  domain.RiskLevel(r.get("financial_risk_level")),
		HealthJustification: r.get("health_justification"),
	}

	ratios := []struct {
		name string
		dst  **float64
	}{
		{"savings_rate", &s.SavingsRate},
		{"expense_to_income_ratio", &s.ExpenseToIncomeRatio},
		{"discretionary_vs_fixed_ratio", &s.DiscretionaryVsFixedRatio},
	}
	for _, ratio := range ratios {
		if *ratio.dst, err = parseFloat(r.get(ratio.name)); err != nil {
			return nil, fmt.Errorf("%s: %w", ratio.name, err)
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"cluster", &s.Cluster},
		{"anomaly", &s.Anomaly},
	}
	for _, f := range ints {
		v, err := parseFloat(r.get(f.name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if v != nil {
			*f.dst = int(*v)
		}
	}

	score, err := parseFloat(r.get("health_score"))
	if err != nil {
		return nil, fmt.Errorf("health_score: %w", err)
	}
	if score != nil {
		s.HealthScore = *score
	}

	return s, nil
}

type categoryColumn struct {
	header   string
	category domain.Category
}

func categoryColumns(header []string) []categoryColumn {
	var out []categoryColumn
	for _, h := range header {
		c, err := domain.ParseCategory(h)
		if err != nil {
			continue
		}
		out = append(out, categoryColumn{header: h, category: c})
	}
	return out
}

func parseExpenses(r row, categories []categoryColumn) (*domain.ExpenseRecord, error) {
	id, err := parseUserID(r.get("id"))
	if err != nil {
		return nil, err
	}

	rec := &domain.ExpenseRecord{
		UserID:   id,
		Expenses: make(domain.ExpenseBreakdown, len(categories)),
	}
	for _, col := range categories {
		v, err := parseFloat(r.get(col.header))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col.header, err)
		}
		if v != nil {
			rec.Expenses[col.category] = *v
		}
	}

	if rec.Income, err = parseFloat(r.get(incomeHeader)); err != nil {
		return nil, fmt.Errorf("%s: %w", incomeHeader, err)
	}
	if rec.Income != nil && *rec.Income < 0 {
		return nil, fmt.Errorf("%s: negative income %v", incomeHeader, *rec.Income)
	}
	return rec, nil
}

// parseUserID accepts "42" and the float rendering "42.0".
func parseUserID(s string) (domain.UserID, error) {
	if s == "" {
		return 0, fmt.Errorf("missing user id")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return domain.UserID(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return domain.UserID(int64(f)), nil
}

// parseFloat returns nil for an empty or NaN cell. Infinities are rejected.
func parseFloat(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	if math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite value %q", s)
	}
	return &f, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func has(cols map[string]int, name string) bool {
	_, ok := cols[name]
	return ok
}

func require(cols map[string]int, names ...string) error {
	for _, name := range names {
		if !has(cols, name) {
			return fmt.Errorf("missing required column %q", name)
		}
	}
	return nil
}
