package universe

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
)

// DefaultListingURLs are the NASDAQ Trader symbol directory files
var DefaultListingURLs = []string{
	"https://www.nasdaqtrader.com/dynamic/symdir/nasdaqlisted.txt",
	"https://www.nasdaqtrader.com/dynamic/symdir/otherlisted.txt",
}

// NasdaqTraderSource lists every symbol in the NASDAQ Trader directory
type NasdaqTraderSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	urls       []string
}

// NewNasdaqTraderSource creates a listing source over the given files
func NewNasdaqTraderSource(httpClient *httputil.Client, log *logger.Logger, urls ...string) *NasdaqTraderSource {
	if len(urls) == 0 {
		urls = DefaultListingURLs
	}
	return &NasdaqTraderSource{
		httpClient: httpClient,
		logger:     log.WithField("module", "universe.nasdaqtrader"),
		urls:       urls,
	}
}

// Listings downloads every file concurrently and concatenates them in URL
// order. Any failed download fails the whole listing.
func (s *NasdaqTraderSource) Listings(ctx context.Context) ([]string, error) {
	bodies := make([][]byte, len(s.urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, url := range s.urls {
		i, url := i, url
		g.Go(func() error {
			body, err := s.httpClient.GetBody(gctx, url)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", url, err)
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var symbols []string
	for i, body := range bodies {
		parsed, err := parseListing(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.urls[i], err)
		}
		symbols = append(symbols, parsed...)
	}

	s.logger.WithField("count", len(symbols)).Debug("Fetched listings")
	return symbols, nil
}

// parseListing reads a pipe-delimited directory file. The symbol column is
// "Symbol" (nasdaqlisted) or "ACT Symbol" (otherlisted). Test issues and
// the trailing "File Creation Time" line are skipped.
func parseListing(text string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("empty listing")
	}

	header := strings.Split(lines[0], "|")
	symbolCol, testCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Symbol", "ACT Symbol":
			if symbolCol < 0 {
				symbolCol = i
			}
		case "Test Issue":
			testCol = i
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("symbol column not found in header %q", lines[0])
	}

	var symbols []string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "File Creation Time") {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) <= symbolCol {
			continue
		}
		if testCol >= 0 && testCol < len(fields) && strings.TrimSpace(fields[testCol]) == "Y" {
			continue
		}

		sym := strings.TrimSpace(fields[symbolCol])
		if sym == "" || strings.Contains(sym, "$") {
			continue
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}
