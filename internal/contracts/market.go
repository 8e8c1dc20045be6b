package contracts

import (
	"time"
)

// Symbol is a normalized ticker (upper case, class separator "-").
// Immutable once resolved into a run's universe.
type Symbol string

// String returns the ticker text
func (s Symbol) String() string {
	return string(s)
}

// PricePoint is one daily OHLCV session
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceHistory is the ascending, date-unique series of sessions for one
// symbol as delivered by one source. Provider gaps are kept as gaps.
type PriceHistory struct {
	Symbol Symbol       `json:"symbol"`
	Source string       `json:"source"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of sessions
func (h PriceHistory) Len() int {
	return len(h.Points)
}

// Closes returns the close prices in date order
func (h PriceHistory) Closes() []float64 {
	closes := make([]float64, len(h.Points))
	for i, p := range h.Points {
		closes[i] = p.Close
	}
	return closes
}

// IsStrictlyAscending reports whether dates increase with no duplicates.
func (h PriceHistory) IsStrictlyAscending() bool {
	for i := 1; i < len(h.Points); i++ {
		if !h.Points[i].Date.After(h.Points[i-1].Date) {
			return false
		}
	}
	return true
}

// Last returns the most recent session
func (h PriceHistory) Last() (PricePoint, bool) {
	if len(h.Points) == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}

// DateRange is a half-open [From, To) calendar range in UTC days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LookbackRange returns the range ending tomorrow (so today's session is
// included) and starting lookbackDays calendar days before today.
func LookbackRange(now time.Time, lookbackDays int) DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return DateRange{
		From: today.AddDate(0, 0, -lookbackDays),
		To:   today.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// FromDate formats From as YYYY-MM-DD
func (r DateRange) FromDate() string {
	return r.From.Format("2006-01-02")
}

// ToDate formats To as YYYY-MM-DD
func (r DateRange) ToDate() string {
	return r.To.Format("2006-01-02")
}
