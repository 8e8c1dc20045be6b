package indicators

import "github.com/wonny/quantsnap/internal/contracts"

// volumeRatioFunc: last volume / mean volume of the last n sessions
func volumeRatioFunc(n int) computeFunc {
	return func(points []contracts.PricePoint) (float64, string) {
		window := points[len(points)-n:]

		var sum float64
		for _, p := range window {
			sum += float64(p.Volume)
		}
		if sum <= 0 {
			return 0, reasonZeroVolume
		}
		mean := sum / float64(n)
		return float64(window[len(window)-1].Volume) / mean, ""
	}
}
