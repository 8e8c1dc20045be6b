package marketdata

import (
	"context"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/logger"
	"github.com/wonny/quantsnap/pkg/redis"
)

// CachedSource memoizes a source's histories in Redis. Entries are keyed by
// source, symbol and range, so a hit is the same answer the provider gave
// within the TTL. Cache errors never fail a fetch.
type CachedSource struct {
	inner  Source
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSource wraps a source
func NewCachedSource(inner Source, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = redis.TTLShort
	}
	return &CachedSource{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithField("module", "marketdata.cache"),
	}
}

// Name reports the wrapped source so statuses and failover order are unchanged
func (c *CachedSource) Name() string {
	return c.inner.Name()
}

// FetchHistory implements Source
func (c *CachedSource) FetchHistory(ctx context.Context, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, error) {
	key := redis.HistoryKey(c.inner.Name(), symbol.String(), rng.FromDate(), rng.ToDate())

	var cached contracts.PriceHistory
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.WithError(err).Warn("History cache read failed")
	}
	if hit && cached.Len() > 0 {
		return cached, nil
	}

	history, err := c.inner.FetchHistory(ctx, symbol, rng)
	if err != nil {
		return history, err
	}

	if err := c.cache.Set(ctx, key, history, c.ttl); err != nil {
		c.logger.WithError(err).Warn("History cache write failed")
	}
	return history, nil
}
