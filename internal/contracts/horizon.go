package contracts

import "time"

// Signal is the BUY/SELL call attached to a horizon score
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// Horizon names a dashboard score table
type Horizon string

const (
	HorizonLong  Horizon = "long_term"
	HorizonMid   Horizon = "mid_term"
	HorizonShort Horizon = "short_term"
)

// AllHorizons returns the horizons in dashboard order
func AllHorizons() []Horizon {
	return []Horizon{HorizonLong, HorizonMid, HorizonShort}
}

// HorizonScore is one row of a horizon table. Score is clamped to 0..100.
type HorizonScore struct {
	Symbol    Symbol    `json:"symbol"`
	TradeDate time.Time `json:"trade_date"`
	Close     float64   `json:"close"`
	Score     int       `json:"score"`
	Signal    Signal    `json:"signal"`
	Source    string    `json:"source"`
}
