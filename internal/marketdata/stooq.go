package marketdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
)

// StooqBaseURL is the CSV download host
const StooqBaseURL = "https://stooq.com"

// StooqSource fetches daily bars as CSV from stooq.com
// ⭐ SSOT: Stooq 호출은 여기서만
type StooqSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewStooqSource creates the fallback source
func NewStooqSource(httpClient *httputil.Client, log *logger.Logger) *StooqSource {
	return &StooqSource{
		httpClient: httpClient,
		logger:     log.WithField("source", "stooq"),
		baseURL:    StooqBaseURL,
	}
}

// WithBaseURL points the source at another host (tests)
func (s *StooqSource) WithBaseURL(baseURL string) *StooqSource {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Name implements Source
func (s *StooqSource) Name() string { return "stooq" }

// stooqSymbol maps AAPL → aapl.us
func stooqSymbol(symbol contracts.Symbol) string {
	return strings.ToLower(symbol.String()) + ".us"
}

// FetchHistory implements Source
func (s *StooqSource) FetchHistory(ctx context.Context, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, error) {
	u := fmt.Sprintf("%s/q/d/l/?s=%s&i=d&d1=%s&d2=%s",
		s.baseURL, stooqSymbol(symbol),
		rng.From.Format("20060102"), rng.To.Format("20060102"))

	body, err := s.httpClient.GetBody(ctx, u)
	if err != nil {
		return contracts.PriceHistory{}, fmt.Errorf("stooq fetch: %w", classifyHTTP(err))
	}

	points, err := parseStooqCSV(body)
	if err != nil {
		return contracts.PriceHistory{}, fmt.Errorf("stooq %s: %w", symbol, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(points),
	}).Debug("Fetched history")

	return contracts.PriceHistory{Symbol: symbol, Source: s.Name(), Points: points}, nil
}

// parseStooqCSV reads Date,Open,High,Low,Close[,Volume]
func parseStooqCSV(body []byte) ([]contracts.PricePoint, error) {
	text := strings.TrimSpace(string(body))
	switch {
	case text == "", strings.Contains(text, "No data"):
		return nil, ErrNoData
	case strings.Contains(text, "Exceeded the daily hits limit"):
		return nil, ErrRateLimited
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, need)
		}
	}
	volCol, hasVolume := cols["volume"]

	width := 0
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if cols[name] >= width {
			width = cols[name] + 1
		}
	}

	var points []contracts.PricePoint
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		if len(rec) < width {
			return nil, fmt.Errorf("%w: short row %q", ErrMalformed, strings.Join(rec, ","))
		}

		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", ErrMalformed, rec[cols["date"]])
		}

		var prices [4]float64
		for i, name := range []string{"open", "high", "low", "close"} {
			d, err := decimal.NewFromString(strings.TrimSpace(rec[cols[name]]))
			if err != nil {
				return nil, fmt.Errorf("%w: bad %s %q", ErrMalformed, name, rec[cols[name]])
			}
			prices[i] = d.Round(2).InexactFloat64()
		}

		var volume int64
		if hasVolume && volCol < len(rec) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[volCol]), 64); err == nil {
				volume = int64(v)
			}
		}

		points = append(points, contracts.PricePoint{
			Date:   date,
			Open:   prices[0],
			High:   prices[1],
			Low:    prices[2],
			Close:  prices[3],
			Volume: volume,
		})
	}

	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}
