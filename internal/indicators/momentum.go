package indicators

import "github.com/wonny/quantsnap/internal/contracts"

// momentumFunc: close[t] / close[t-n] - 1
func momentumFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		last := points[len(points)-1].Close
		base := points[len(points)-1-n].Close
		if base <= 0 || last <= 0 {
			return 0, reasonNonPositivePrice
		}
		return last/base - 1, ""
	}
}

// rsiFunc computes Wilder's RSI. The first average covers the first period
// changes of the history; every later change is smoothed in.
func rsiFunc(period int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		var avgGain, avgLoss float64
		for i := 1; i <= period; i++ {
			change := points[i].Close - points[i-1].Close
			if change > 0 {
				avgGain += change
			} else {
				avgLoss -= change
			}
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)

		p := float64(period)
		for i := period + 1; i < len(points); i++ {
			change := points[i].Close - points[i-1].Close
			gain, loss := 0.0, 0.0
			if change > 0 {
				gain = change
			} else {
				loss = -change
			}
			avgGain = (avgGain*(p-1) + gain) / p
			avgLoss = (avgLoss*(p-1) + loss) / p
		}

		// 100 - 100/(1+RS) rewritten so only a flat window divides by zero
		if avgGain+avgLoss == 0 {
			return 0, reasonZeroDivisor
		}
		return 100 * avgGain / (avgGain + avgLoss), ""
	}
}
