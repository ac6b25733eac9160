package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the complete Fathom configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server" json:"server"`

	// Tier determines which backends are used
	Tier Tier `toml:"tier" json:"tier"`

	// Component configurations
	Repository RepositoryConfig `toml:"repository" json:"repository"`
	Cache      CacheConfig      `toml:"cache" json:"cache"`
	EventBus   EventBusConfig   `toml:"eventBus" json:"eventBus"`

	// Insight computation
	Budget BudgetConfig `toml:"budget" json:"budget"`
	Worker WorkerConfig `toml:"worker" json:"worker"`

	// Observability
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Tracing TracingConfig `toml:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host" json:"host"`
	Port         int    `toml:"port" json:"port"`
	ReadTimeout  int    `toml:"readTimeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `toml:"writeTimeout" json:"writeTimeout"` // seconds
	MaxBatchSize int    `toml:"maxBatchSize" json:"maxBatchSize"`

	// AllowedOrigins restricts CORS. Empty echoes any origin.
	AllowedOrigins []string `toml:"allowedOrigins" json:"allowedOrigins"`
}

// BudgetConfig tunes the budget recommender.
type BudgetConfig struct {
	MaxChangePercent float64 `toml:"maxChangePercent" json:"maxChangePercent"`
	NeedsShare       float64 `toml:"needsShare" json:"needsShare"`
	WantsShare       float64 `toml:"wantsShare" json:"wantsShare"`
	SavingsShare     float64 `toml:"savingsShare" json:"savingsShare"`
}

// WorkerConfig controls the batch insight worker.
type WorkerConfig struct {
	Enabled     bool `toml:"enabled" json:"enabled"`
	WorkerCount int  `toml:"workerCount" json:"workerCount"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`   // debug, info, warn, error
	Format string `toml:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled" json:"enabled"`
	ServiceName string  `toml:"serviceName" json:"serviceName"`
	SampleRate  float64 `toml:"sampleRate" json:"sampleRate"` // 0 < rate <= 1
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process LRU and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			MaxBatchSize: 1000,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fathom.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Budget: BudgetConfig{
			MaxChangePercent: 0.25,
			NeedsShare:       0.5,
			WantsShare:       0.3,
			SavingsShare:     0.2,
		},
		Worker: WorkerConfig{
			Enabled:     false,
			WorkerCount: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fathom",
			SampleRate:  1.0,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fathom",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       60,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the effective configuration: tier defaults, then the
// optional TOML file at path, then FATHOM_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("FATHOM_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production and a map lookup in tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("FATHOM_TIER"); ok && v != "" {
		c.Tier = Tier(v)
	}
	if err := num("FATHOM_PORT", &c.Server.Port); err != nil {
		return err
	}
	str("FATHOM_SQLITE_PATH", &c.Repository.SQLitePath)
	str("FATHOM_POSTGRES_HOST", &c.Repository.PostgresHost)
	if err := num("FATHOM_POSTGRES_PORT", &c.Repository.PostgresPort); err != nil {
		return err
	}
	str("FATHOM_POSTGRES_USER", &c.Repository.PostgresUser)
	str("FATHOM_POSTGRES_PASSWORD", &c.Repository.PostgresPassword)
	str("FATHOM_POSTGRES_DB", &c.Repository.PostgresDB)
	str("FATHOM_POSTGRES_SSLMODE", &c.Repository.PostgresSSLMode)
	str("FATHOM_REDIS_ADDR", &c.Cache.RedisAddr)
	str("FATHOM_NATS_URL", &c.EventBus.NATSUrl)
	str("FATHOM_LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("FATHOM_CORS_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}

	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	if err := flag("FATHOM_ASYNC_WORKER", &c.Worker.Enabled); err != nil {
		return err
	}
	return flag("FATHOM_TRACING", &c.Tracing.Enabled)
}
