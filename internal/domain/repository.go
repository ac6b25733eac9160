// Package domain defines the core interfaces and types for Fathom.
package domain

import (
	"context"
	"time"
)

// SignalReader reads the three upstream per-user rows.
// Each method returns repository.ErrNotFound when the user has no row.
type SignalReader interface {
	GetBehaviorSignal(ctx context.Context, userID UserID) (*BehaviorSignal, error)
	GetFinancialSignal(ctx context.Context, userID UserID) (*FinancialSignal, error)
	GetExpenseRecord(ctx context.Context, userID UserID) (*ExpenseRecord, error)
}

// SignalRepository defines the interface for data persistence.
type SignalRepository interface {
	SignalReader

	// Upstream ingestion (upserts)
	SaveBehaviorSignal(ctx context.Context, s *BehaviorSignal) error
	SaveFinancialSignal(ctx context.Context, s *FinancialSignal) error
	SaveExpenseRecord(ctx context.Context, r *ExpenseRecord) error

	// ListUserIDs returns every user with at least one upstream row, ascending.
	ListUserIDs(ctx context.Context) ([]UserID, error)

	// Advisory rule configuration operations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `toml:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `toml:"sqlitePath" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `toml:"postgresHost" json:"postgresHost"`
	PostgresPort     int    `toml:"postgresPort" json:"postgresPort"`
	PostgresUser     string `toml:"postgresUser" json:"postgresUser"`
	PostgresPassword string `toml:"postgresPassword" json:"-"`
	PostgresDB       string `toml:"postgresDB" json:"postgresDB"`
	PostgresSSLMode  string `toml:"postgresSSLMode" json:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `toml:"maxOpenConns" json:"maxOpenConns"`
	MaxIdleConns    int           `toml:"maxIdleConns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `toml:"connMaxLifetime" json:"connMaxLifetime"`
}
