// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fathom/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.SignalRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// driver pairs a database/sql driver name with its DSN builder.
type driver struct {
	sqlName string
	dsn     func(domain.RepositoryConfig) (string, error)
}

var drivers = map[string]driver{
	"sqlite":   {sqlName: "sqlite", dsn: sqliteDSN},
	"postgres": {sqlName: "postgres", dsn: postgresDSN},
}

// New opens the configured database, verifies the connection and applies the
// schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	d, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open(d.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBehaviorSignal upserts a user's behavior row.
func (r *SQLRepository) SaveBehaviorSignal(ctx context.Context, s *domain.BehaviorSignal) error {
	if s == nil {
		return fmt.Errorf("%w: behavior signal is required", ErrInvalidInput)
	}
	if s.AnomalyRatio < 0 || s.AnomalyRatio > 1 || math.IsNaN(s.AnomalyRatio) {
		return fmt.Errorf("%w: anomaly ratio %v out of [0, 1]", ErrInvalidInput, s.AnomalyRatio)
	}

	query := `
		INSERT INTO behavior_signals (
			user_id, dominant_intensity, anomaly_ratio, has_anomaly,
			behavior_type, behavior_risk_level, justification, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			dominant_intensity = excluded.dominant_intensity,
			anomaly_ratio = excluded.anomaly_ratio,
			has_anomaly = excluded.has_anomaly,
			behavior_type = excluded.behavior_type,
			behavior_risk_level = excluded.behavior_risk_level,
			justification = excluded.justification,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		int64(s.UserID), string(s.DominantIntensity), s.AnomalyRatio, boolToInt(s.HasAnomaly),
		s.BehaviorType, string(s.BehaviorRiskLevel), s.Justification,
		time.Now().UTC(),
	)
	return err
}

// GetBehaviorSignal retrieves a user's behavior row.
func (r *SQLRepository) GetBehaviorSignal(ctx context.Context, userID domain.UserID) (*domain.BehaviorSignal, error) {
	query := `
		SELECT user_id, dominant_intensity, anomaly_ratio, has_anomaly,
			   behavior_type, behavior_risk_level, justification
		FROM behavior_signals
		WHERE user_id = ?
	`

	var s domain.BehaviorSignal
	var id int64
	var intensity string
	var hasAnomaly int
	var behaviorType, risk, justification sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), int64(userID)).Scan(
		&id, &intensity, &s.AnomalyRatio, &hasAnomaly,
		&behaviorType, &risk, &justification,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.UserID = domain.UserID(id)
	s.DominantIntensity = domain.Intensity(intensity)
	s.HasAnomaly = hasAnomaly == 1
	s.BehaviorType = behaviorType.String
	s.BehaviorRiskLevel = domain.RiskLevel(risk.String)
	s.Justification = justification.String

	return &s, nil
}

// SaveFinancialSignal upserts a user's financial row. Nil ratios are stored as NULL.
func (r *SQLRepository) SaveFinancialSignal(ctx context.Context, s *domain.FinancialSignal) error {
	if s == nil {
		return fmt.Errorf("%w: financial signal is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO financial_signals (
			user_id, savings_rate, expense_to_income_ratio, discretionary_vs_fixed_ratio,
			cluster, anomaly, financial_health, financial_risk_level,
			health_score, health_justification, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			savings_rate = excluded.savings_rate,
			expense_to_income_ratio = excluded.expense_to_income_ratio,
			discretionary_vs_fixed_ratio = excluded.discretionary_vs_fixed_ratio,
			cluster = excluded.cluster,
			anomaly = excluded.anomaly,
			financial_health = excluded.financial_health,
			financial_risk_level = excluded.financial_risk_level,
			health_score = excluded.health_score,
			health_justification = excluded.health_justification,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		int64(s.UserID), nullFloat(s.SavingsRate), nullFloat(s.ExpenseToIncomeRatio), nullFloat(s.DiscretionaryVsFixedRatio),
		s.Cluster, s.Anomaly, string(s.FinancialHealth), string(s.FinancialRiskLevel),
		s.HealthScore, s.HealthJustification, time.Now().UTC(),
	)
	return err
}

// GetFinancialSignal retrieves a user's financial row.
func (r *SQLRepository) GetFinancialSignal(ctx context.Context, userID domain.UserID) (*domain.FinancialSignal, error) {
	query := `
		SELECT user_id, savings_rate, expense_to_income_ratio, discretionary_vs_fixed_ratio,
			   cluster, anomaly, financial_health, financial_risk_level,
			   health_score, health_justification
		FROM financial_signals
		WHERE user_id = ?
	`

	var s domain.FinancialSignal
	var id int64
	var savings, expense, discretionary sql.NullFloat64
	var health, risk, justification sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), int64(userID)).Scan(
		&id, &savings, &expense, &discretionary,
		&s.Cluster, &s.Anomaly, &health, &risk,
		&s.HealthScore, &justification,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.UserID = domain.UserID(id)
	s.SavingsRate = floatPtr(savings)
	s.ExpenseToIncomeRatio = floatPtr(expense)
	s.DiscretionaryVsFixedRatio = floatPtr(discretionary)
	s.FinancialHealth = domain.HealthLabel(health.String)
	s.FinancialRiskLevel = domain.RiskLevel(risk.String)
	s.HealthJustification = justification.String

	return &s, nil
}

// SaveExpenseRecord upserts a user's expense row. Only the enumerated
// categories are stored; amounts and income must be non-negative.
func (r *SQLRepository) SaveExpenseRecord(ctx context.Context, rec *domain.ExpenseRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: expense record is required", ErrInvalidInput)
	}
	if rec.Income != nil && !validAmount(*rec.Income) {
		return fmt.Errorf("%w: income %v must be a non-negative number", ErrInvalidInput, *rec.Income)
	}
	for c, v := range rec.Expenses {
		if _, err := domain.ParseCategory(string(c)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if !validAmount(v) {
			return fmt.Errorf("%w: %s amount %v must be a non-negative number", ErrInvalidInput, c, v)
		}
	}

	cols := expenseColumns()
	placeholders := strings.Repeat("?, ", len(cols)+2) + "?"
	updates := make([]string, 0, len(cols)+2)
	for _, col := range append(cols, "income", "updated_at") {
		updates = append(updates, col+" = excluded."+col)
	}

	query := `
		INSERT INTO expense_records (user_id, ` + strings.Join(cols, ", ") + `, income, updated_at)
		VALUES (` + placeholders + `)
		ON CONFLICT(user_id) DO UPDATE SET ` + strings.Join(updates, ", ")

	args := make([]any, 0, len(cols)+3)
	args = append(args, int64(rec.UserID))
	for _, c := range domain.AllCategories() {
		if v, ok := rec.Expenses[c]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	args = append(args, nullFloat(rec.Income), time.Now().UTC())

	_, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	return err
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// GetExpenseRecord retrieves a user's expense row.
func (r *SQLRepository) GetExpenseRecord(ctx context.Context, userID domain.UserID) (*domain.ExpenseRecord, error) {
	cols := expenseColumns()
	query := `SELECT user_id, ` + strings.Join(cols, ", ") + `, income FROM expense_records WHERE user_id = ?`

	var id int64
	amounts := make([]sql.NullFloat64, len(cols))
	var income sql.NullFloat64

	dest := make([]any, 0, len(cols)+2)
	dest = append(dest, &id)
	for i := range amounts {
		dest = append(dest, &amounts[i])
	}
	dest = append(dest, &income)

	err := r.db.QueryRowContext(ctx, r.rebind(query), int64(userID)).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &domain.ExpenseRecord{
		UserID:   domain.UserID(id),
		Expenses: make(domain.ExpenseBreakdown, len(cols)),
		Income:   floatPtr(income),
	}
	for i, c := range domain.AllCategories() {
		if amounts[i].Valid {
			rec.Expenses[c] = amounts[i].Float64
		}
	}

	return rec, nil
}

// ListUserIDs returns every user present in at least one upstream table.
func (r *SQLRepository) ListUserIDs(ctx context.Context) ([]domain.UserID, error) {
	query := `
		SELECT user_id FROM behavior_signals
		UNION
		SELECT user_id FROM financial_signals
		UNION
		SELECT user_id FROM expense_records
		ORDER BY 1
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.UserID(id))
	}

	return ids, rows.Err()
}

// SaveRuleConfig stores a rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a rule configuration, enabled or not.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE id = ?
	`

	cfg, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs retrieves all enabled rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&cfg.ID, &cfg.Name, &description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	); err != nil {
		return nil, err
	}

	cfg.Description = description.String
	cfg.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &cfg.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for rule %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
