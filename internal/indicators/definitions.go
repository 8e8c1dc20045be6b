package indicators

import (
	"fmt"

	"github.com/wonny/quantsnap/internal/contracts"
)

// TradingDaysPerYear annualizes every daily statistic
const TradingDaysPerYear = 252

// Fixed indicator names (window-derived names come from Config)
const (
	NameExpectedReturn = "expected_return"
	NameMaxDrawdown    = "max_drawdown"
)

// Config sets indicator windows in trading sessions
type Config struct {
	ShortWindow int
	LongWindow  int
	RSIPeriod   int
}

// DefaultConfig returns the 20/50/14 windows
func DefaultConfig() Config {
	return Config{
		ShortWindow: 20,
		LongWindow:  50,
		RSIPeriod:   14,
	}
}

// computeFunc receives the full normalized history (ascending, positive
// closes) and returns a value or the reason it is unavailable.
type computeFunc func(points []contracts.PricePoint) (float64, string)

// Definition is one configured indicator
type Definition struct {
	Name     string
	Lookback int // minimum trailing points
	compute  computeFunc
}

// Definitions returns every indicator computed per symbol.
// ⭐ SSOT: indicator names and lookbacks are defined here only.
func (c Config) Definitions() []Definition {
	short, long, rsi := c.ShortWindow, c.LongWindow, c.RSIPeriod

	return []Definition{
		{Name: fmt.Sprintf("sma_%d", short), Lookback: short, compute: smaFunc(short)},
		{Name: fmt.Sprintf("sma_%d", long), Lookback: long, compute: smaFunc(long)},
		{Name: fmt.Sprintf("ema_%d", short), Lookback: short, compute: emaFunc(short)},
		{Name: MomentumName(short), Lookback: short + 1, compute: momentumFunc(short)},
		{Name: VolatilityName(short), Lookback: short + 1, compute: volatilityFunc(short)},
		{Name: NameExpectedReturn, Lookback: short + 1, compute: expectedReturnFunc(short)},
		{Name: NameMaxDrawdown, Lookback: short, compute: maxDrawdownFunc(short)},
		{Name: fmt.Sprintf("rsi_%d", rsi), Lookback: rsi + 1, compute: rsiFunc(rsi)},
		{Name: fmt.Sprintf("volume_ratio_%dd", short), Lookback: short, compute: volumeRatioFunc(short)},
	}
}

// Names returns indicator names in definition order
func (c Config) Names() []string {
	defs := c.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// MomentumName returns the momentum indicator name for a window
func MomentumName(window int) string {
	return fmt.Sprintf("momentum_%dd", window)
}

// VolatilityName returns the volatility indicator name for a window
func VolatilityName(window int) string {
	return fmt.Sprintf("volatility_%dd", window)
}
