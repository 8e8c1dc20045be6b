package indicators

import "github.com/wonny/quantsnap/internal/contracts"

// smaFunc: mean close of the last n sessions
func smaFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		window := points[len(points)-n:]

		var sum float64
		for _, p := range window {
			if p.Close <= 0 {
				return 0, reasonNonPositivePrice
			}
			sum += p.Close
		}
		return sum / float64(n), ""
	}
}

// emaFunc seeds with the SMA of the first n sessions, then smooths
// through every later session with alpha = 2/(n+1).
func emaFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		var sum float64
		for _, p := range points[:n] {
			if p.Close <= 0 {
				return 0, reasonNonPositivePrice
			}
			sum += p.Close
		}
		ema := sum / float64(n)

		alpha := 2.0 / (float64(n) + 1.0)
		for _, p := range points[n:] {
			if p.Close <= 0 {
				return 0, reasonNonPositivePrice
			}
			ema = p.Close*alpha + ema*(1-alpha)
		}
		return ema, ""
	}
}
