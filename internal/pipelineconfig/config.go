package pipelineconfig

import "time"

// Universe modes accepted in universe.mode
const (
	ModeManual          = "manual"
	ModeIndexMembership = "index-membership"
	ModeBroadMarket     = "broad-market"
)

// Config is the resolved pipeline configuration consumed by one run.
type Config struct {
	App        App        `yaml:"app" json:"app"`
	Universe   Universe   `yaml:"universe" json:"universe"`
	Pipeline   Pipeline   `yaml:"pipeline" json:"pipeline"`
	Indicators Indicators `yaml:"indicators" json:"indicators"`
	Fetch      Fetch      `yaml:"fetch" json:"fetch"`
	Export     Export     `yaml:"export" json:"export"`
	Storage    Storage    `yaml:"storage" json:"storage"`
	Schedule   Schedule   `yaml:"schedule" json:"schedule"`
}

// App identifies the deployment
type App struct {
	Name     string `yaml:"name" json:"name"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// Universe selects the symbols considered in a run
type Universe struct {
	Mode       string   `yaml:"mode" json:"mode"`
	Symbols    []string `yaml:"symbols" json:"symbols"`
	Index      string   `yaml:"index" json:"index"` // index-membership only
	MaxSymbols int      `yaml:"max_symbols" json:"max_symbols"`
}

// Pipeline holds ranking inputs
type Pipeline struct {
	TargetAnnualReturn float64  `yaml:"target_annual_return" json:"target_annual_return"`
	MaxRecommendations int      `yaml:"max_recommendations" json:"max_recommendations"`
	LookbackDays       int      `yaml:"lookback_days" json:"lookback_days"` // calendar days
	RequiredIndicators []string `yaml:"required_indicators" json:"required_indicators"`
	Weights            Weights  `yaml:"weights" json:"weights"`
}

// Weights for the score: return adds, volatility subtracts, momentum adds
type Weights struct {
	Return     float64 `yaml:"return" json:"return"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Momentum   float64 `yaml:"momentum" json:"momentum"`
}

// Indicators sets the lookback windows, in trading sessions
type Indicators struct {
	ShortWindow int `yaml:"short_window" json:"short_window"`
	LongWindow  int `yaml:"long_window" json:"long_window"`
	RSIPeriod   int `yaml:"rsi_period" json:"rsi_period"`
}

// Fetch is the market data retry, concurrency and rate budget
type Fetch struct {
	Sources           []string      `yaml:"sources" json:"sources"` // ordered: primary first
	Workers           int           `yaml:"workers" json:"workers"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"` // per source
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`             // per request
	SymbolBudget      time.Duration `yaml:"symbol_budget" json:"symbol_budget"` // all sources, one symbol
}

// Export is the snapshot destination
type Export struct {
	Path string `yaml:"path" json:"path"`
}

// Storage retention
type Storage struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// Schedule drives `quant scheduler start`
type Schedule struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Cron     string `yaml:"cron" json:"cron"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// Default returns the configuration used when a field is not set in YAML.
func Default() *Config {
	return &Config{
		App: App{
			Name:     "stock-quant-dashboard",
			Timezone: "UTC",
		},
		Universe: Universe{
			Mode:       ModeManual,
			Symbols:    []string{"AAPL"},
			Index:      "sp500",
			MaxSymbols: 50,
		},
		Pipeline: Pipeline{
			TargetAnnualReturn: 0.10,
			MaxRecommendations: 10,
			LookbackDays:       120,
			RequiredIndicators: []string{"expected_return", "volatility_20d", "momentum_20d"},
			Weights: Weights{
				Return:     1.0,
				Volatility: 0.5,
				Momentum:   0.25,
			},
		},
		Indicators: Indicators{
			ShortWindow: 20,
			LongWindow:  50,
			RSIPeriod:   14,
		},
		Fetch: Fetch{
			Sources:           []string{"yahoo", "stooq"},
			Workers:           4,
			RequestsPerSecond: 4,
			Burst:             4,
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        4 * time.Second,
			Timeout:           15 * time.Second,
			SymbolBudget:      60 * time.Second,
		},
		Export: Export{
			Path: "docs/data/latest.json",
		},
		Storage: Storage{
			RetentionDays: 14,
		},
		Schedule: Schedule{
			Enabled:  true,
			Cron:     "0 18 * * 1-5",
			Timezone: "UTC",
		},
	}
}
