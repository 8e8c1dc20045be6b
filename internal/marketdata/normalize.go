package marketdata

import (
	"sort"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
)

// Normalize returns a copy of h restricted to rng, sorted ascending, with
// one point per date. Gaps stay gaps. Non-positive closes are kept so the
// indicator windows that cover them come out unavailable.
func Normalize(h contracts.PriceHistory, rng contracts.DateRange) contracts.PriceHistory {
	points := make([]contracts.PricePoint, 0, len(h.Points))
	for _, p := range h.Points {
		p.Date = truncateDay(p.Date)
		if !rng.From.IsZero() && !rng.Contains(p.Date) {
			continue
		}
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	// first occurrence wins on duplicate dates
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Date.Equal(p.Date) {
			continue
		}
		out = append(out, p)
	}

	return contracts.PriceHistory{
		Symbol: h.Symbol,
		Source: h.Source,
		Points: out,
	}
}

// hasPositiveClose reports whether at least one session carries a usable price
func hasPositiveClose(h contracts.PriceHistory) bool {
	for _, p := range h.Points {
		if p.Close > 0 {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
