package contracts

import "sort"

// IndicatorValue is one computed indicator. When Available is false, Value
// is meaningless and Reason says why (short history, zero divisor...).
type IndicatorValue struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Reason    string  `json:"reason,omitempty"`
}

// Available wraps a computed value
func Available(v float64) IndicatorValue {
	return IndicatorValue{Value: v, Available: true}
}

// Unavailable marks an indicator that could not be computed
func Unavailable(reason string) IndicatorValue {
	return IndicatorValue{Reason: reason}
}

// IndicatorSet holds every indicator computed from exactly one PriceHistory.
type IndicatorSet struct {
	Symbol Symbol                    `json:"symbol"`
	Values map[string]IndicatorValue `json:"values"`
}

// NewIndicatorSet creates an empty set for a symbol
func NewIndicatorSet(symbol Symbol) IndicatorSet {
	return IndicatorSet{
		Symbol: symbol,
		Values: make(map[string]IndicatorValue),
	}
}

// Get returns the value of an available indicator
func (s IndicatorSet) Get(name string) (float64, bool) {
	v, ok := s.Values[name]
	if !ok || !v.Available {
		return 0, false
	}
	return v.Value, true
}

// Missing returns the required indicator names that are absent or
// unavailable, in the order given.
func (s IndicatorSet) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := s.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// AvailableValues returns only the computed indicators as plain numbers.
func (s IndicatorSet) AvailableValues() map[string]float64 {
	out := make(map[string]float64, len(s.Values))
	for name, v := range s.Values {
		if v.Available {
			out[name] = v.Value
		}
	}
	return out
}

// Names returns indicator names sorted lexically
func (s IndicatorSet) Names() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
