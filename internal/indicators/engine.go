package indicators

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/logger"
)

const (
	reasonNonPositivePrice    = "non-positive price in window"
	reasonZeroDivisor         = "zero divisor"
	reasonZeroVolume          = "zero volume in window"
	reasonInsufficientReturns = "fewer than two returns"
	reasonNotFinite           = "result is not finite"
)

// Engine computes IndicatorSets from price histories
// ⭐ SSOT: 지표 계산은 여기서만
type Engine struct {
	defs   []Definition
	logger *logger.Logger
}

// NewEngine creates an engine for the configured windows
func NewEngine(cfg Config, log *logger.Logger) *Engine {
	return &Engine{
		defs:   cfg.Definitions(),
		logger: log.WithField("module", "indicators"),
	}
}

// Names returns the indicator names this engine produces
func (e *Engine) Names() []string {
	names := make([]string, len(e.defs))
	for i, d := range e.defs {
		names[i] = d.Name
	}
	return names
}

// Compute derives every configured indicator from one history.
// The result depends only on history: no clock, no randomness, no I/O.
func (e *Engine) Compute(history contracts.PriceHistory) contracts.IndicatorSet {
	set := contracts.NewIndicatorSet(history.Symbol)

	for _, def := range e.defs {
		set.Values[def.Name] = computeOne(def, history.Points)
	}

	return set
}

// ComputeAll runs Compute for every history. Symbols are independent, so
// there is no shared state between them.
func (e *Engine) ComputeAll(histories map[contracts.Symbol]contracts.PriceHistory) map[contracts.Symbol]contracts.IndicatorSet {
	out := make(map[contracts.Symbol]contracts.IndicatorSet, len(histories))
	unavailable := 0

	for symbol, history := range histories {
		set := e.Compute(history)
		out[symbol] = set
		unavailable += len(Unavailable(set))
	}

	e.logger.WithFields(map[string]interface{}{
		"symbols":     len(out),
		"unavailable": unavailable,
	}).Debug("Computed indicators")

	return out
}

// Unavailable lists the indicators of a set that have no value, sorted by
// indicator name.
func Unavailable(set contracts.IndicatorSet) []*contracts.IndicatorUnavailable {
	var out []*contracts.IndicatorUnavailable
	for name, v := range set.Values {
		if v.Available {
			continue
		}
		out = append(out, &contracts.IndicatorUnavailable{
			Symbol:    set.Symbol,
			Indicator: name,
			Reason:    v.Reason,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Indicator < out[j].Indicator
	})
	return out
}

func computeOne(def Definition, points []contracts.PricePoint) contracts.IndicatorValue {
	if len(points) < def.Lookback {
		return contracts.Unavailable(fmt.Sprintf("insufficient history: need %d points, have %d", def.Lookback, len(points)))
	}

	value, reason := def.compute(points)
	if reason != "" {
		return contracts.Unavailable(reason)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return contracts.Unavailable(reasonNotFinite)
	}
	return contracts.Available(value)
}
