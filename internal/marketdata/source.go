package marketdata

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/httputil"
)

// Source is one provider of daily OHLCV history
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, error)
}

var (
	// ErrNoData means the provider answered but has nothing for the symbol
	ErrNoData = errors.New("no data")
	// ErrRateLimited is a provider-side throttling signal (HTTP 429 or body marker)
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformed means the payload could not be parsed
	ErrMalformed = errors.New("malformed payload")
)

// isPermanent reports errors that another attempt against the same source
// cannot fix. The fetcher moves to the next source immediately.
func isPermanent(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, ErrMalformed) {
		return true
	}
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound
	}
	return false
}

// classifyHTTP maps a throttling status to ErrRateLimited
func classifyHTTP(err error) error {
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return errors.Join(ErrRateLimited, err)
	}
	return err
}

// roundCents rounds a provider price to two decimals
func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
