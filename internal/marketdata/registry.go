package marketdata

import (
	"fmt"
	"time"

	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
	"github.com/wonny/quantsnap/pkg/redis"
)

// NewSources builds the configured sources in order. Retries are owned by
// the Fetcher, so the HTTP client's own retry is disabled here. When cache
// is non-nil every source is wrapped in a CachedSource.
func NewSources(names []string, httpClient *httputil.Client, cache *redis.Cache, ttl time.Duration, log *logger.Logger) ([]Source, error) {
	client := httpClient.DisableRetry()

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		var src Source
		switch name {
		case "yahoo":
			src = NewYahooSource(client, log)
		case "stooq":
			src = NewStooqSource(client, log)
		default:
			return nil, fmt.Errorf("unknown market data source %q", name)
		}

		if cache != nil {
			src = NewCachedSource(src, cache, ttl, log)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
