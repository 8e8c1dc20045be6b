package recommend

import (
	"math"
	"sort"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/indicators"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Weights for the score components (all >= 0)
type Weights struct {
	Return     float64
	Volatility float64
	Momentum   float64
}

// DefaultWeights returns 1.0 / 0.5 / 0.25
func DefaultWeights() Weights {
	return Weights{Return: 1.0, Volatility: 0.5, Momentum: 0.25}
}

// Config wires the engine to indicator names
type Config struct {
	Weights            Weights
	RequiredIndicators []string

	// Indicator names read by the score
	ExpectedReturn string
	Volatility     string
	Momentum       string
}

// DefaultConfig matches the default indicator windows
func DefaultConfig() Config {
	window := indicators.DefaultConfig().ShortWindow
	return Config{
		Weights: DefaultWeights(),
		RequiredIndicators: []string{
			indicators.NameExpectedReturn,
			indicators.VolatilityName(window),
			indicators.MomentumName(window),
		},
		ExpectedReturn: indicators.NameExpectedReturn,
		Volatility:     indicators.VolatilityName(window),
		Momentum:       indicators.MomentumName(window),
	}
}

// Engine ranks indicator sets against a target annual return
// ⭐ SSOT: 추천 점수 계산은 여기서만
type Engine struct {
	config Config
	logger *logger.Logger
}

// NewEngine creates a recommendation engine
func NewEngine(cfg Config, log *logger.Logger) *Engine {
	return &Engine{
		config: cfg,
		logger: log.WithField("module", "recommend"),
	}
}

type candidate struct {
	set   contracts.IndicatorSet
	score float64
}

// Recommend filters, scores, sorts and truncates.
// Sets missing a required indicator are excluded; an empty input or a fully
// filtered input yields an empty, non-nil list.
func (e *Engine) Recommend(sets []contracts.IndicatorSet, targetAnnualReturn float64, maxRecommendations int) ([]contracts.Recommendation, error) {
	if maxRecommendations <= 0 {
		return nil, contracts.NewConfigurationError("pipeline.max_recommendations",
			"must be > 0, got %d", maxRecommendations)
	}

	// 1. Filter
	candidates := make([]candidate, 0, len(sets))
	excluded := 0
	for _, set := range sets {
		if missing := set.Missing(e.config.RequiredIndicators); len(missing) > 0 {
			excluded++
			e.logger.WithFields(map[string]interface{}{
				"symbol":  set.Symbol,
				"missing": missing,
			}).Debug("Excluded from ranking")
			continue
		}

		score, ok := e.Score(set, targetAnnualReturn)
		if !ok {
			excluded++
			continue
		}
		candidates = append(candidates, candidate{set: set, score: score})
	}

	// 2. Sort: score desc, symbol asc
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].set.Symbol < candidates[j].set.Symbol
	})

	// 3. Truncate
	if len(candidates) > maxRecommendations {
		candidates = candidates[:maxRecommendations]
	}

	recs := make([]contracts.Recommendation, len(candidates))
	for i, c := range candidates {
		recs[i] = contracts.Recommendation{
			Symbol:     c.set.Symbol,
			Rank:       i + 1,
			Score:      c.score,
			Indicators: c.set.AvailableValues(),
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"input":    len(sets),
		"excluded": excluded,
		"selected": len(recs),
		"target":   targetAnnualReturn,
	}).Info("Ranked symbols")

	return recs, nil
}

// Score computes
//
//	w_r·(expected_return − target) − w_v·volatility + w_m·tanh(2·momentum)
//
// It is strictly increasing in expected return (w_r > 0) and non-increasing
// in volatility. Returns false when an input is missing.
func (e *Engine) Score(set contracts.IndicatorSet, targetAnnualReturn float64) (float64, bool) {
	er, ok := set.Get(e.config.ExpectedReturn)
	if !ok {
		return 0, false
	}
	vol, ok := set.Get(e.config.Volatility)
	if !ok {
		return 0, false
	}

	// momentum is optional unless listed as required
	mom, _ := set.Get(e.config.Momentum)

	w := e.config.Weights
	score := w.Return*(er-targetAnnualReturn) - w.Volatility*vol + w.Momentum*math.Tanh(2*mom)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}
