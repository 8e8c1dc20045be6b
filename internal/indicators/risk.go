package indicators

import (
	"math"

	"github.com/wonny/quantsnap/internal/contracts"
)

// logReturns returns the n daily log returns ending at the last session.
func logReturns(points []contracts.PricePoint, n int) ([]float64, string) {
	window := points[len(points)-n-1:]
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1].Close, window[i].Close
		if prev <= 0 || cur <= 0 {
			return nil, reasonNonPositivePrice
		}
		returns = append(returns, math.Log(cur/prev))
	}
	return returns, ""
}

// volatilityFunc: sample stddev of n daily log returns × √252
func volatilityFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		returns, reason := logReturns(points, n)
		if reason != "" {
			return 0, reason
		}
		if len(returns) < 2 {
			return 0, reasonInsufficientReturns
		}

		mean := meanOf(returns)
		var ss float64
		for _, r := range returns {
			ss += (r - mean) * (r - mean)
		}
		variance := ss / float64(len(returns)-1)
		return math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear), ""
	}
}

// expectedReturnFunc annualizes the mean daily log return:
// exp(mean × 252) - 1
func expectedReturnFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		returns, reason := logReturns(points, n)
		if reason != "" {
			return 0, reason
		}
		return math.Exp(meanOf(returns)*TradingDaysPerYear) - 1, ""
	}
}

// maxDrawdownFunc: largest peak-to-trough fall over the last n closes,
// reported as a fraction <= 0.
func maxDrawdownFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		window := points[len(points)-n:]

		peak := 0.0
		worst := 0.0
		for _, p := range window {
			if p.Close <= 0 {
				return 0, reasonNonPositivePrice
			}
			if p.Close > peak {
				peak = p.Close
			}
			if dd := p.Close/peak - 1; dd < worst {
				worst = dd
			}
		}
		return worst, ""
	}
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
