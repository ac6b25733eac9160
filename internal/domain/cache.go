package domain

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value cache with expiration.
// Implementations: local LRU (Community), Redis, or both as two-phase (Pro).
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string `toml:"type" json:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int `toml:"localMaxSize" json:"localMaxSize"`
	LocalTTL     int `toml:"localTTL" json:"localTTL"` // seconds

	// Redis settings (Pro tier)
	RedisAddr     string `toml:"redisAddr" json:"redisAddr"`
	RedisPassword string `toml:"redisPassword" json:"-"`
	RedisDB       int    `toml:"redisDB" json:"redisDB"`

	// RedisPoolSize of 0 keeps the client default.
	RedisPoolSize  int    `toml:"redisPoolSize" json:"redisPoolSize"`
	RedisKeyPrefix string `toml:"redisKeyPrefix" json:"redisKeyPrefix"`

	// Two-phase settings
	EnableTwoPhase bool `toml:"enableTwoPhase" json:"enableTwoPhase"` // If true, check local first, then Redis
}

// LocalTTLDuration returns LocalTTL as a duration, defaulting to five minutes.
func (c CacheConfig) LocalTTLDuration() time.Duration {
	if c.LocalTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.LocalTTL) * time.Second
}
