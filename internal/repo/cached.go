package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-causality/internal/cache"
	"github.com/miradorstack/mirador-causality/internal/models"
)

// CachedStore memoises probable cause fetches per evidence id and time span. Evidence rows
// and pages are always read through, so paging sees newly written evidence.
type CachedStore struct {
	Store
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps inner with the cache provider. A nil provider or non-positive ttl
// returns inner unchanged.
func NewCachedStore(inner Store, provider cache.Provider, ttl time.Duration, logger *slog.Logger) Store {
	if provider == nil || ttl <= 0 {
		return inner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{Store: inner, cache: provider, ttl: ttl, logger: logger}
}

// FetchProbableCauses serves from cache when possible and stores upstream results otherwise.
func (s *CachedStore) FetchProbableCauses(ctx context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error) {
	key := probableCausesKey(evidenceID, timeSpanSecs)
	if cached, ok := s.load(ctx, key); ok {
		return cached, nil
	}

	causes, err := s.Store.FetchProbableCauses(ctx, evidenceID, timeSpanSecs)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, causes)
	return causes, nil
}

// Close closes the wrapped store and the cache provider.
func (s *CachedStore) Close() error {
	return errors.Join(s.Store.Close(), s.cache.Close())
}

func (s *CachedStore) load(ctx context.Context, key string) ([]models.RawCause, bool) {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("probable cause cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	var wire []causeJSON
	if err := json.Unmarshal(payload, &wire); err != nil {
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		_ = s.cache.Del(ctx, key)
		return nil, false
	}
	return causesFromJSON(wire), true
}

func (s *CachedStore) store(ctx context.Context, key string, causes []models.RawCause) {
	payload, err := json.Marshal(causesToJSON(causes))
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.logger.Warn("probable cause cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func probableCausesKey(evidenceID, timeSpanSecs int) string {
	return fmt.Sprintf("causality:probable-causes:%d:%d", evidenceID, timeSpanSecs)
}
