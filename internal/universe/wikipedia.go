package universe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/httputil"
	"github.com/wonny/quantsnap/pkg/logger"
)

// SP500URL is the constituents table used for index-membership mode
const SP500URL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// WikipediaSource scrapes index constituent tables
// ⭐ SSOT: 지수 구성종목 스크래핑은 여기서만
type WikipediaSource struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	urls       map[string]string
}

// NewWikipediaSource creates a membership source for sp500
func NewWikipediaSource(httpClient *httputil.Client, log *logger.Logger) *WikipediaSource {
	return &WikipediaSource{
		httpClient: httpClient,
		logger:     log.WithField("module", "universe.wikipedia"),
		urls: map[string]string{
			"sp500": SP500URL,
		},
	}
}

// WithURL overrides the page for an index id
func (s *WikipediaSource) WithURL(indexID, url string) *WikipediaSource {
	s.urls[indexID] = url
	return s
}

// Constituents returns the symbol column of the first table on the page
func (s *WikipediaSource) Constituents(ctx context.Context, indexID string) ([]string, error) {
	url, ok := s.urls[strings.ToLower(indexID)]
	if !ok {
		return nil, contracts.NewConfigurationError("universe.index", "unsupported index %q", indexID)
	}

	body, err := s.httpClient.GetBody(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents page: %w", err)
	}

	symbols, err := parseConstituents(body)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"index": indexID,
		"count": len(symbols),
	}).Debug("Fetched constituents")
	return symbols, nil
}

// parseConstituents reads the "Symbol" column of the first wikitable
// (table#constituents when present).
func parseConstituents(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table#constituents")
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("constituents table not found")
	}

	col := -1
	table.Find("tr").First().Find("th").EachWithBreak(func(i int, th *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(th.Text()), "Symbol") {
			col = i
			return false
		}
		return true
	})
	if col < 0 {
		return nil, fmt.Errorf("symbol column not found")
	}

	var symbols []string
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= col {
			return
		}
		if sym := strings.TrimSpace(cells.Eq(col).Text()); sym != "" {
			symbols = append(symbols, sym)
		}
	})

	if len(symbols) == 0 {
		return nil, fmt.Errorf("constituents table is empty")
	}
	return symbols, nil
}
