// Package lookup provides a read-through cache in front of the signal tables.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/fathom/internal/domain"
)

// DefaultTTL is used when NewCachedSource is given a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// CachedSource wraps a SignalReader with a cache. Hits are served from the
// cache; misses go to the reader and the result is stored. Reader errors,
// including not-found, are never cached.
type CachedSource struct {
	reader domain.SignalReader
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource creates a read-through source.
func NewCachedSource(reader domain.SignalReader, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		reader: reader,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func behaviorKey(id domain.UserID) string  { return fmt.Sprintf("behavior:%d", id) }
func financialKey(id domain.UserID) string { return fmt.Sprintf("financial:%d", id) }
func expenseKey(id domain.UserID) string   { return fmt.Sprintf("expense:%d", id) }

// GetBehaviorSignal implements domain.SignalReader.
func (s *CachedSource) GetBehaviorSignal(ctx context.Context, userID domain.UserID) (*domain.BehaviorSignal, error) {
	return readThrough(ctx, s, behaviorKey(userID), func() (*domain.BehaviorSignal, error) {
		return s.reader.GetBehaviorSignal(ctx, userID)
	})
}

// GetFinancialSignal implements domain.SignalReader.
func (s *CachedSource) GetFinancialSignal(ctx context.Context, userID domain.UserID) (*domain.FinancialSignal, error) {
	return readThrough(ctx, s, financialKey(userID), func() (*domain.FinancialSignal, error) {
		return s.reader.GetFinancialSignal(ctx, userID)
	})
}

// GetExpenseRecord implements domain.SignalReader.
func (s *CachedSource) GetExpenseRecord(ctx context.Context, userID domain.UserID) (*domain.ExpenseRecord, error) {
	return readThrough(ctx, s, expenseKey(userID), func() (*domain.ExpenseRecord, error) {
		return s.reader.GetExpenseRecord(ctx, userID)
	})
}

// Invalidate drops every cached row for the user. Call it after writing
// new upstream data.
func (s *CachedSource) Invalidate(ctx context.Context, userID domain.UserID) error {
	for _, key := range []string{behaviorKey(userID), financialKey(userID), expenseKey(userID)} {
		if err := s.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	return nil
}

// readThrough treats cache failures as misses so a broken cache degrades to
// direct reads.
func readThrough[T any](ctx context.Context, s *CachedSource, key string, load func() (*T, error)) (*T, error) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if data != nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	v, err := load()
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, encoded, s.ttl); err != nil {
			s.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
