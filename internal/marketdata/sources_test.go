package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
)

const chartJSON = `{"chart":{"result":[{
  "meta":{"symbol":"AAPL","gmtoffset":-18000},
  "timestamp":[1767623400,1767709800,1767796200],
  "indicators":{"quote":[{
    "open":[100.123,101.5,null],
    "high":[102.0,103.256,104],
    "low":[99.5,100.994,101],
    "close":[101.004,102.555,null],
    "volume":[1000000,1200000,null]
  }]}
}],"error":null}}`

var january = contracts.DateRange{
	From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
}

func testClient() *httputil.Client {
	return httputil.NewWithTimeout(&config.Config{}, logger.Nop(), 5*time.Second).DisableRetry()
}

func serve(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestYahooSource_FetchHistory(t *testing.T) {
	server := serve(t, http.StatusOK, chartJSON, func(r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1767225600", r.URL.Query().Get("period1"))
		assert.Equal(t, "1769904000", r.URL.Query().Get("period2"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
	})

	src := NewYahooSource(testClient(), logger.Nop()).WithBaseURL(server.URL)
	h, err := src.FetchHistory(context.Background(), "AAPL", january)
	require.NoError(t, err)

	assert.Equal(t, "yahoo", h.Source)
	assert.Equal(t, contracts.Symbol("AAPL"), h.Symbol)
	require.Len(t, h.Points, 2, "null bar is skipped")

	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), h.Points[0].Date)
	assert.Equal(t, 100.12, h.Points[0].Open)
	assert.Equal(t, 101.0, h.Points[0].Close)
	assert.Equal(t, int64(1000000), h.Points[0].Volume)
	assert.Equal(t, 103.26, h.Points[1].High)
	assert.Equal(t, 102.56, h.Points[1].Close)
}

func TestYahooSource_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      error
		permanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, "Too Many Requests", ErrRateLimited, false},
		{"not found json", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, ErrNoData, true},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, ErrNoData, true},
		{"empty body", http.StatusOK, "", ErrNoData, true},
		{"malformed", http.StatusOK, "<html>oops</html>", ErrMalformed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, tt.status, tt.body, nil)
			src := NewYahooSource(testClient(), logger.Nop()).WithBaseURL(server.URL)

			_, err := src.FetchHistory(context.Background(), "AAPL", january)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.permanent, isPermanent(err))
		})
	}
}

func TestYahooSource_HTTP404IsPermanent(t *testing.T) {
	server := serve(t, http.StatusNotFound, `{"chart":{"error":{"code":"Not Found"}}}`, nil)
	src := NewYahooSource(testClient(), logger.Nop()).WithBaseURL(server.URL)

	_, err := src.FetchHistory(context.Background(), "ZZZZ", january)
	require.Error(t, err)
	assert.True(t, isPermanent(err))
}

func TestYahooSource_ServerErrorIsRetryable(t *testing.T) {
	server := serve(t, http.StatusBadGateway, "", nil)
	src := NewYahooSource(testClient(), logger.Nop()).WithBaseURL(server.URL)

	_, err := src.FetchHistory(context.Background(), "AAPL", january)
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}

func TestStooqSource_FetchHistory(t *testing.T) {
	csv := "Date,Open,High,Low,Close,Volume\n" +
		"2026-01-05,100.111,102,99.5,101.005,1000000\n" +
		"2026-01-06,101.5,103.25,100.99,102.55,1.2e6\n"

	server := serve(t, http.StatusOK, csv, func(r *http.Request) {
		assert.Equal(t, "/q/d/l/", r.URL.Path)
		assert.Equal(t, "brk-b.us", r.URL.Query().Get("s"))
		assert.Equal(t, "d", r.URL.Query().Get("i"))
		assert.Equal(t, "20260101", r.URL.Query().Get("d1"))
	})

	src := NewStooqSource(testClient(), logger.Nop()).WithBaseURL(server.URL)
	h, err := src.FetchHistory(context.Background(), "BRK-B", january)
	require.NoError(t, err)

	assert.Equal(t, "stooq", h.Source)
	require.Len(t, h.Points, 2)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), h.Points[0].Date)
	assert.Equal(t, 100.11, h.Points[0].Open)
	assert.Equal(t, 101.01, h.Points[0].Close)
	assert.Equal(t, int64(1200000), h.Points[1].Volume)
}

func TestParseStooqCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"no data", "No data", ErrNoData},
		{"empty", "", ErrNoData},
		{"hits limit", "Exceeded the daily hits limit", ErrRateLimited},
		{"missing column", "Date,Open,High\n2026-01-05,1,2\n", ErrMalformed},
		{"bad date", "Date,Open,High,Low,Close\n05/01/2026,1,2,1,2\n", ErrMalformed},
		{"bad price", "Date,Open,High,Low,Close\n2026-01-05,x,2,1,2\n", ErrMalformed},
		{"short row", "Date,Open,High,Low,Close\n2026-01-05,1\n", ErrMalformed},
		{"header only", "Date,Open,High,Low,Close,Volume\n", ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseStooqCSV([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseStooqCSV_NoVolumeColumn(t *testing.T) {
	points, err := parseStooqCSV([]byte("Date,Open,High,Low,Close\n2026-01-05,1,2,0.5,1.5\n"))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Zero(t, points[0].Volume)
}

func TestNormalize(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC) }

	h := contracts.PriceHistory{Symbol: "A", Source: "x", Points: []contracts.PricePoint{
		{Date: d(7), Close: 3},
		{Date: d(5), Close: 1},
		{Date: d(6).Add(15 * time.Hour), Close: 2},
		{Date: d(6), Close: 9},  // duplicate date
		{Date: d(8), Close: 0},  // kept for the indicator engine
		{Date: d(9), Close: -1}, // kept for the indicator engine
		// out of range
		{Date: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), Close: 5},
	}}

	out := Normalize(h, january)
	require.Len(t, out.Points, 5)
	assert.True(t, out.IsStrictlyAscending())
	assert.Equal(t, []float64{1, 2, 3, 0, -1}, out.Closes())
	assert.Equal(t, d(6), out.Points[1].Date)

	// input untouched
	assert.Equal(t, d(7), h.Points[0].Date)
}

func TestNewSources(t *testing.T) {
	sources, err := NewSources([]string{"stooq", "yahoo"}, testClient(), nil, 0, logger.Nop())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "stooq", sources[0].Name())
	assert.Equal(t, "yahoo", sources[1].Name())

	_, err = NewSources([]string{"bloomberg"}, testClient(), nil, 0, logger.Nop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bloomberg"))
}
