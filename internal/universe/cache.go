package universe

import (
	"context"

	"github.com/wonny/quantsnap/pkg/logger"
	"github.com/wonny/quantsnap/pkg/redis"
)

// CachedMembership memoizes constituent lists in Redis for a day.
// Cache failures fall through to the wrapped source.
type CachedMembership struct {
	inner  MembershipSource
	cache  *redis.Cache
	logger *logger.Logger
}

// NewCachedMembership wraps a membership source
func NewCachedMembership(inner MembershipSource, cache *redis.Cache, log *logger.Logger) *CachedMembership {
	return &CachedMembership{
		inner:  inner,
		cache:  cache,
		logger: log.WithField("module", "universe.cache"),
	}
}

// Constituents implements MembershipSource
func (c *CachedMembership) Constituents(ctx context.Context, indexID string) ([]string, error) {
	key := redis.MembershipKey(indexID)

	var cached []string
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.WithError(err).Warn("Membership cache read failed")
	}
	if hit && len(cached) > 0 {
		return cached, nil
	}

	symbols, err := c.inner.Constituents(ctx, indexID)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, symbols, redis.TTLDaily); err != nil {
		c.logger.WithError(err).Warn("Membership cache write failed")
	}
	return symbols, nil
}
