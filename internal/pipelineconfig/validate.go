package pipelineconfig

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/indicators"
)

// KnownSources lists the market data sources that can be configured
var KnownSources = []string{"yahoo", "stooq"}

// KnownIndexes lists the index ids index-membership mode can resolve
var KnownIndexes = []string{"sp500"}

// Validate checks every constraint and returns the first violation as a
// *contracts.ConfigurationError.
func Validate(cfg *Config) error {
	// === Universe ===
	switch cfg.Universe.Mode {
	case ModeManual, ModeIndexMembership, ModeBroadMarket:
	default:
		return contracts.NewConfigurationError("universe.mode",
			"unrecognized mode %q (want manual, index-membership or broad-market)", cfg.Universe.Mode)
	}
	if cfg.Universe.MaxSymbols <= 0 {
		return contracts.NewConfigurationError("universe.max_symbols", "must be > 0, got %d", cfg.Universe.MaxSymbols)
	}
	if cfg.Universe.Mode == ModeIndexMembership && cfg.Universe.Index == "" {
		return contracts.NewConfigurationError("universe.index", "required for index-membership mode")
	}
	if cfg.Universe.Mode == ModeIndexMembership && !contains(KnownIndexes, strings.ToLower(cfg.Universe.Index)) {
		return contracts.NewConfigurationError("universe.index",
			"unsupported index %q (want one of %s)", cfg.Universe.Index, strings.Join(KnownIndexes, ", "))
	}

	// === Pipeline ===
	if cfg.Pipeline.MaxRecommendations <= 0 {
		return contracts.NewConfigurationError("pipeline.max_recommendations",
			"must be > 0, got %d", cfg.Pipeline.MaxRecommendations)
	}
	if cfg.Pipeline.LookbackDays <= 0 {
		return contracts.NewConfigurationError("pipeline.lookback_days", "must be > 0")
	}
	w := cfg.Pipeline.Weights
	if w.Return <= 0 {
		return contracts.NewConfigurationError("pipeline.weights.return", "must be > 0")
	}
	if w.Volatility < 0 || w.Momentum < 0 {
		return contracts.NewConfigurationError("pipeline.weights", "volatility and momentum weights must be >= 0")
	}

	// === Indicators ===
	ind := cfg.IndicatorConfig()
	if ind.ShortWindow < 2 || ind.LongWindow < 2 || ind.RSIPeriod < 2 {
		return contracts.NewConfigurationError("indicators", "windows must be >= 2")
	}
	// sma_<short> and sma_<long> would collide
	if ind.LongWindow <= ind.ShortWindow {
		return contracts.NewConfigurationError("indicators.long_window",
			"must be > short_window (%d), got %d", ind.ShortWindow, ind.LongWindow)
	}
	known := make(map[string]bool)
	for _, name := range ind.Names() {
		known[name] = true
	}
	for _, name := range cfg.Pipeline.RequiredIndicators {
		if !known[name] {
			return contracts.NewConfigurationError("pipeline.required_indicators", "unknown indicator %q", name)
		}
	}

	// === Fetch ===
	if len(cfg.Fetch.Sources) == 0 {
		return contracts.NewConfigurationError("fetch.sources", "at least one source is required")
	}
	seen := make(map[string]bool)
	for _, s := range cfg.Fetch.Sources {
		if !contains(KnownSources, s) {
			return contracts.NewConfigurationError("fetch.sources", "unknown source %q", s)
		}
		if seen[s] {
			return contracts.NewConfigurationError("fetch.sources", "duplicate source %q", s)
		}
		seen[s] = true
	}
	if cfg.Fetch.Workers <= 0 {
		return contracts.NewConfigurationError("fetch.workers", "must be > 0")
	}
	if cfg.Fetch.RequestsPerSecond <= 0 || cfg.Fetch.Burst <= 0 {
		return contracts.NewConfigurationError("fetch.requests_per_second", "rate and burst must be > 0")
	}
	if cfg.Fetch.MaxAttempts <= 0 {
		return contracts.NewConfigurationError("fetch.max_attempts", "must be > 0")
	}
	if cfg.Fetch.InitialBackoff < 0 || cfg.Fetch.MaxBackoff < cfg.Fetch.InitialBackoff {
		return contracts.NewConfigurationError("fetch.max_backoff", "must be >= initial_backoff >= 0")
	}
	if cfg.Fetch.Timeout <= 0 || cfg.Fetch.SymbolBudget <= 0 {
		return contracts.NewConfigurationError("fetch.timeout", "timeout and symbol_budget must be > 0")
	}

	// === Export / Storage ===
	if cfg.Export.Path == "" {
		return contracts.NewConfigurationError("export.path", "required")
	}
	if cfg.Storage.RetentionDays < 0 {
		return contracts.NewConfigurationError("storage.retention_days", "must be >= 0 (0 keeps everything)")
	}

	// === Schedule ===
	if _, err := time.LoadLocation(cfg.App.Timezone); err != nil {
		return contracts.NewConfigurationError("app.timezone", "%v", err)
	}
	if cfg.Schedule.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return contracts.NewConfigurationError("schedule.cron", "%v", err)
		}
		if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
			return contracts.NewConfigurationError("schedule.timezone", "%v", err)
		}
	}

	return nil
}

// IndicatorConfig converts the YAML section into the engine's config
func (c *Config) IndicatorConfig() indicators.Config {
	return indicators.Config{
		ShortWindow: c.Indicators.ShortWindow,
		LongWindow:  c.Indicators.LongWindow,
		RSIPeriod:   c.Indicators.RSIPeriod,
	}
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
