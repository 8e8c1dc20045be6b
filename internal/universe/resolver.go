package universe

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/logger"
)

// MembershipSource lists index constituents. It is never backed by the
// market data provider.
type MembershipSource interface {
	Constituents(ctx context.Context, indexID string) ([]string, error)
}

// ListingSource lists every tradable symbol on the covered exchanges
type ListingSource interface {
	Listings(ctx context.Context) ([]string, error)
}

// Resolver expands a Selector into a bounded, deduplicated symbol list
// ⭐ SSOT: 유니버스 확정은 여기서만
type Resolver struct {
	membership MembershipSource
	listings   ListingSource
	logger     *logger.Logger
}

// NewResolver creates a resolver. Either source may be nil when the
// corresponding mode is not used.
func NewResolver(membership MembershipSource, listings ListingSource, log *logger.Logger) *Resolver {
	return &Resolver{
		membership: membership,
		listings:   listings,
		logger:     log.WithField("module", "universe"),
	}
}

// Resolve returns at most maxSymbols normalized symbols in source order.
// The cap is applied here, before any price fetch is scheduled.
func (r *Resolver) Resolve(ctx context.Context, sel Selector, maxSymbols int) ([]contracts.Symbol, error) {
	if maxSymbols <= 0 {
		return nil, contracts.NewConfigurationError("universe.max_symbols", "must be > 0, got %d", maxSymbols)
	}

	var (
		raw  []string
		mode string
		err  error
	)

	switch s := sel.(type) {
	case Manual:
		mode = "manual"
		raw = s.Symbols

	case IndexMembership:
		mode = "index-membership"
		if r.membership == nil {
			return nil, contracts.NewConfigurationError("universe.index", "no membership source configured")
		}
		if s.IndexID == "" {
			return nil, contracts.NewConfigurationError("universe.index", "index id is required")
		}
		raw, err = r.membership.Constituents(ctx, s.IndexID)
		if err != nil {
			return nil, fmt.Errorf("load %s constituents: %w", s.IndexID, err)
		}

	case BroadMarket:
		mode = "broad-market"
		if r.listings == nil {
			return nil, contracts.NewConfigurationError("universe.mode", "no listing source configured")
		}
		raw, err = r.listings.Listings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load listings: %w", err)
		}

	default:
		return nil, contracts.NewConfigurationError("universe.mode", "unsupported selector %T", sel)
	}

	symbols, total := dedupe(raw, maxSymbols)

	log := r.logger.WithFields(map[string]interface{}{
		"mode":        mode,
		"candidates":  total,
		"resolved":    len(symbols),
		"max_symbols": maxSymbols,
	})
	if total > len(symbols) {
		log.Warn("Universe truncated to max_symbols")
	} else {
		log.Info("Universe resolved")
	}

	return symbols, nil
}

// dedupe normalizes, drops blanks and repeats, keeps first-seen order and
// stops at limit. total counts every distinct symbol seen in raw.
func dedupe(raw []string, limit int) ([]contracts.Symbol, int) {
	seen := make(map[contracts.Symbol]bool, len(raw))
	out := make([]contracts.Symbol, 0, min(len(raw), limit))

	for _, r := range raw {
		s := Normalize(r)
		if s == "" || strings.ContainsAny(string(s), " $") || seen[s] {
			continue
		}
		seen[s] = true
		if len(out) < limit {
			out = append(out, s)
		}
	}
	return out, len(seen)
}
