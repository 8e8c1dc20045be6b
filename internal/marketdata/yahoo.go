package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
)

// YahooBaseURL is the public chart API host
const YahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource fetches daily bars from the Yahoo Finance chart API
// ⭐ SSOT: Yahoo Finance 호출은 여기서만
type YahooSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewYahooSource creates the primary source
func NewYahooSource(httpClient *httputil.Client, log *logger.Logger) *YahooSource {
	return &YahooSource{
		httpClient: httpClient,
		logger:     log.WithField("source", "yahoo"),
		baseURL:    YahooBaseURL,
	}
}

// WithBaseURL points the source at another host (tests)
func (s *YahooSource) WithBaseURL(baseURL string) *YahooSource {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Name implements Source
func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the subset of the chart response we read
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchHistory implements Source
func (s *YahooSource) FetchHistory(ctx context.Context, symbol contracts.Symbol, rng contracts.DateRange) (contracts.PriceHistory, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		s.baseURL, url.PathEscape(symbol.String()), rng.From.Unix(), rng.To.Unix())

	body, err := s.httpClient.GetBody(ctx, u)
	if err != nil {
		// the chart API reports unknown symbols as 404 with a JSON error body
		return contracts.PriceHistory{}, fmt.Errorf("yahoo fetch: %w", classifyHTTP(err))
	}

	points, err := parseYahooChart(body)
	if err != nil {
		return contracts.PriceHistory{}, fmt.Errorf("yahoo %s: %w", symbol, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(points),
	}).Debug("Fetched history")

	return contracts.PriceHistory{Symbol: symbol, Source: s.Name(), Points: points}, nil
}

func parseYahooChart(body []byte) ([]contracts.PricePoint, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrNoData
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s", ErrNoData, chart.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo api error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, ErrNoData
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no quote block", ErrMalformed)
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n || len(quote.Close) != n || len(quote.Volume) != n {
		return nil, fmt.Errorf("%w: quote arrays do not match %d timestamps", ErrMalformed, n)
	}

	points := make([]contracts.PricePoint, 0, n)
	for i, ts := range result.Timestamp {
		o, h, l, c, v := quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i], quote.Volume[i]
		if o == nil || h == nil || l == nil || c == nil {
			continue // null bar (halt, holiday row)
		}

		var volume int64
		if v != nil {
			volume = int64(*v)
		}

		// session date in exchange local time
		local := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		points = append(points, contracts.PricePoint{
			Date:   truncateDay(local),
			Open:   roundCents(*o),
			High:   roundCents(*h),
			Low:    roundCents(*l),
			Close:  roundCents(*c),
			Volume: volume,
		})
	}

	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}
