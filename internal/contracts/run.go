package contracts

import "time"

// FetchStatus is the per-symbol outcome reported in every snapshot
type FetchStatus string

const (
	StatusOK           FetchStatus = "ok"
	StatusFallbackUsed FetchStatus = "fallback_used"
	StatusFailed       FetchStatus = "failed"
)

// IsValid checks the status against the exported enum
func (s FetchStatus) IsValid() bool {
	switch s {
	case StatusOK, StatusFallbackUsed, StatusFailed:
		return true
	default:
		return false
	}
}

// SymbolStatus records how one symbol fared in a run
type SymbolStatus struct {
	Symbol Symbol      `json:"symbol"`
	Status FetchStatus `json:"status"`
	Source string      `json:"source,omitempty"` // source that produced the history
	Reason string      `json:"reason,omitempty"` // failure reason when Status is failed
}

// Recommendation is one ranked symbol with the values that justified it
type Recommendation struct {
	Symbol     Symbol             `json:"symbol"`
	Rank       int                `json:"rank"` // 1-based
	Score      float64            `json:"score"`
	Indicators map[string]float64 `json:"indicators"`
}

// RunResult is the aggregate of one pipeline invocation and the unit of
// persistence and export.
type RunResult struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	GeneratedAt time.Time `json:"generated_at"`

	Mode       string    `json:"mode"`
	Timezone   string    `json:"timezone"`
	Range      DateRange `json:"range"`
	ConfigHash string    `json:"config_hash,omitempty"`

	// Symbols is the resolved universe in resolution order
	Symbols         []Symbol                `json:"symbols"`
	Histories       map[Symbol]PriceHistory `json:"-"`
	Indicators      map[Symbol]IndicatorSet `json:"indicators"`
	Recommendations []Recommendation        `json:"recommendations"`
	Statuses        []SymbolStatus          `json:"symbols_status"`

	// Horizons holds the long/mid/short score tables, best score first
	Horizons map[Horizon][]HorizonScore `json:"horizons"`

	State  State         `json:"state"`
	Stages []StageResult `json:"stages,omitempty"`

	// Skipped is set when nothing was fetched and persistence/export were
	// deliberately not performed.
	Skipped bool `json:"skipped"`
}

// NewRunResult creates an empty result with initialized maps
func NewRunResult(runID string, startedAt time.Time) *RunResult {
	return &RunResult{
		RunID:           runID,
		StartedAt:       startedAt,
		Histories:       make(map[Symbol]PriceHistory),
		Indicators:      make(map[Symbol]IndicatorSet),
		Recommendations: []Recommendation{},
		Statuses:        []SymbolStatus{},
		Horizons:        make(map[Horizon][]HorizonScore),
		State:           StateResolving,
	}
}

// StatusCounts tallies statuses by kind
func (r *RunResult) StatusCounts() map[FetchStatus]int {
	counts := map[FetchStatus]int{
		StatusOK:           0,
		StatusFallbackUsed: 0,
		StatusFailed:       0,
	}
	for _, s := range r.Statuses {
		counts[s.Status]++
	}
	return counts
}

// SuccessCount returns symbols with a usable history (ok or fallback_used)
func (r *RunResult) SuccessCount() int {
	counts := r.StatusCounts()
	return counts[StatusOK] + counts[StatusFallbackUsed]
}

// StatusOf returns the recorded status for a symbol
func (r *RunResult) StatusOf(symbol Symbol) (SymbolStatus, bool) {
	for _, s := range r.Statuses {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return SymbolStatus{}, false
}

// PriceRowCount returns the number of price rows a batch write would carry
func (r *RunResult) PriceRowCount() int {
	n := 0
	for _, h := range r.Histories {
		n += len(h.Points)
	}
	return n
}
