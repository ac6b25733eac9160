package repository

import (
	"strings"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Schema definitions for the Fathom database.
// Compatible with both SQLite and PostgreSQL.

const schemaBehaviorSignals = `
CREATE TABLE IF NOT EXISTS behavior_signals (
    user_id BIGINT PRIMARY KEY,
    dominant_intensity TEXT NOT NULL,
    anomaly_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    has_anomaly INTEGER NOT NULL DEFAULT 0,
    behavior_type TEXT,
    behavior_risk_level TEXT,
    justification TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

// Ratio columns are NULL when the upstream job did not compute them.
const schemaFinancialSignals = `
CREATE TABLE IF NOT EXISTS financial_signals (
    user_id BIGINT PRIMARY KEY,
    savings_rate DOUBLE PRECISION,
    expense_to_income_ratio DOUBLE PRECISION,
    discretionary_vs_fixed_ratio DOUBLE PRECISION,
    cluster INTEGER NOT NULL DEFAULT 0,
    anomaly INTEGER NOT NULL DEFAULT 0,
    financial_health TEXT,
    financial_risk_level TEXT,
    health_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    health_justification TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// expenseColumns lists one nullable column per category, in category order.
// A NULL column means the category is absent from the user's breakdown.
func expenseColumns() []string {
	cats := domain.AllCategories()
	cols := make([]string, len(cats))
	for i, c := range cats {
		cols[i] = c.Column()
	}
	return cols
}

func schemaExpenseRecords() string {
	var b strings.Builder
	b.WriteString("\nCREATE TABLE IF NOT EXISTS expense_records (\n    user_id BIGINT PRIMARY KEY,\n")
	for _, col := range expenseColumns() {
		b.WriteString("    " + col + " DOUBLE PRECISION,\n")
	}
	b.WriteString("    income DOUBLE PRECISION,\n    updated_at TIMESTAMP NOT NULL\n);\n")
	return b.String()
}

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBehaviorSignals,
		schemaFinancialSignals,
		schemaExpenseRecords(),
		schemaRuleConfigs,
	}
}
