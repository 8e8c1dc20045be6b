package universe

import (
	"strings"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/pipelineconfig"
)

// Selector is the configured universe. Exactly one of Manual,
// IndexMembership or BroadMarket.
type Selector interface {
	isSelector()
}

// Manual is an explicit symbol list
type Manual struct {
	Symbols []string
}

// IndexMembership is the current constituent list of an index (e.g. sp500)
type IndexMembership struct {
	IndexID string
}

// BroadMarket is every listed US common stock
type BroadMarket struct{}

func (Manual) isSelector()          {}
func (IndexMembership) isSelector() {}
func (BroadMarket) isSelector()     {}

// SelectorFor converts the YAML universe section into a Selector.
// This is the only place the mode string is inspected.
func SelectorFor(u pipelineconfig.Universe) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(u.Mode)) {
	case pipelineconfig.ModeManual:
		return Manual{Symbols: u.Symbols}, nil
	case pipelineconfig.ModeIndexMembership:
		return IndexMembership{IndexID: u.Index}, nil
	case pipelineconfig.ModeBroadMarket:
		return BroadMarket{}, nil
	default:
		return nil, contracts.NewConfigurationError("universe.mode", "unrecognized mode %q", u.Mode)
	}
}

// Normalize trims, upper-cases and maps the class separator: " brk.b" → "BRK-B"
func Normalize(raw string) contracts.Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return contracts.Symbol(strings.ReplaceAll(s, ".", "-"))
}
