package horizon

import (
	"math"
	"sort"

	"github.com/wonny/quantsnap/internal/contracts"
)

const (
	// SignalWindow is the SMA/momentum window behind the BUY/SELL signal
	SignalWindow = 5
	// MidWindow sessions of momentum are averaged for the mid-term score
	MidWindow = 20
	// LongWindow closes form the long-term baseline and drift
	LongWindow = 60
)

// Score computes one symbol's row in every horizon table.
// ok is false when the history is empty or a close used by any table is
// not positive.
func Score(h contracts.PriceHistory) (map[contracts.Horizon]contracts.HorizonScore, bool) {
	latest, ok := h.Last()
	if !ok {
		return nil, false
	}

	// lag included: the oldest mid-term momentum looks SignalWindow back
	tail := h.Points
	if keep := LongWindow + SignalWindow; len(tail) > keep {
		tail = tail[len(tail)-keep:]
	}
	closes := contracts.PriceHistory{Points: tail}.Closes()
	for _, c := range closes {
		if c <= 0 {
			return nil, false
		}
	}

	sma, momentum := signalSeries(closes)
	last := len(closes) - 1
	price := latest.Close
	aboveSMA := price > sma[last]

	row := func(score float64, buy bool) contracts.HorizonScore {
		return contracts.HorizonScore{
			Symbol:    h.Symbol,
			TradeDate: latest.Date,
			Close:     price,
			Score:     clamp(score),
			Signal:    signalOf(buy),
			Source:    h.Source,
		}
	}

	// short: momentum of the latest session
	short := row(50+momentum[last]*1200, aboveSMA && momentum[last] > 0)

	// mid: average momentum over MidWindow sessions, nudged by the SMA side
	window := momentum[max(0, len(momentum)-MidWindow):]
	avg := mean(window)
	bonus := -8.0
	if aboveSMA {
		bonus = 8
	}
	mid := row(50+avg*1000+bonus, avg > 0 && aboveSMA)

	// long: drift from the first close and distance from the mean close
	longCloses := closes[max(0, len(closes)-LongWindow):]
	baseline := mean(longCloses)
	drift := price/longCloses[0] - 1
	long := row(50+drift*300+(price/baseline-1)*250, price > baseline && drift > 0)

	return map[contracts.Horizon]contracts.HorizonScore{
		contracts.HorizonShort: short,
		contracts.HorizonMid:   mid,
		contracts.HorizonLong:  long,
	}, true
}

// Build scores every history and returns the sorted tables. Every horizon
// key is present, possibly with an empty list.
func Build(histories map[contracts.Symbol]contracts.PriceHistory) map[contracts.Horizon][]contracts.HorizonScore {
	tables := make(map[contracts.Horizon][]contracts.HorizonScore, 3)
	for _, hz := range contracts.AllHorizons() {
		tables[hz] = []contracts.HorizonScore{}
	}

	for _, h := range histories {
		rows, ok := Score(h)
		if !ok {
			continue
		}
		for hz, row := range rows {
			tables[hz] = append(tables[hz], row)
		}
	}

	for _, rows := range tables {
		Sort(rows)
	}
	return tables
}

// Sort orders rows by score descending, then symbol ascending
func Sort(rows []contracts.HorizonScore) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

// signalSeries returns the rolling SMA (shorter at the start) and the
// SignalWindow-session momentum, 0 where no lagged close exists.
func signalSeries(closes []float64) (sma, momentum []float64) {
	sma = make([]float64, len(closes))
	momentum = make([]float64, len(closes))

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= SignalWindow {
			sum -= closes[i-SignalWindow]
			momentum[i] = c/closes[i-SignalWindow] - 1
		}
		sma[i] = sum / float64(min(i+1, SignalWindow))
	}
	return sma, momentum
}

func signalOf(buy bool) contracts.Signal {
	if buy {
		return contracts.SignalBuy
	}
	return contracts.SignalSell
}

// clamp rounds half to even and bounds to 0..100
func clamp(v float64) int {
	return int(math.Max(0, math.Min(100, math.RoundToEven(v))))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
