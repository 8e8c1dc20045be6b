package export

import (
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/storage"
)

// RecentRunsLimit caps recent_runs in the snapshot
const RecentRunsLimit = 20

// Snapshot is the JSON document read by the static dashboard.
// The first three keys are the stable contract; the rest feed the horizon
// tabs and run history of the dashboard.
// ⭐ SSOT: 대시보드 JSON 스키마는 여기서만 정의
type Snapshot struct {
	GeneratedAt     time.Time                `json:"generated_at"`
	Recommendations []SnapshotRecommendation `json:"recommendations"`
	SymbolsStatus   []SnapshotStatus         `json:"symbols_status"`

	RunID      string                   `json:"run_id"`
	Timezone   string                   `json:"timezone"`
	LongTerm   []contracts.HorizonScore `json:"long_term"`
	MidTerm    []contracts.HorizonScore `json:"mid_term"`
	ShortTerm  []contracts.HorizonScore `json:"short_term"`
	RecentRuns []storage.RunSummary     `json:"recent_runs"`
}

// SnapshotRecommendation is one ranked entry
type SnapshotRecommendation struct {
	Symbol     string             `json:"symbol"`
	Rank       int                `json:"rank"`
	Score      float64            `json:"score"`
	Indicators map[string]float64 `json:"indicators"`
}

// SnapshotStatus is the fetch outcome of one symbol
type SnapshotStatus struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// NewSnapshot projects a run result and the run history onto the export
// schema. Lists are never null so the frontend can iterate without guards.
func NewSnapshot(r *contracts.RunResult, recent []storage.RunSummary) Snapshot {
	s := Snapshot{
		GeneratedAt:     r.GeneratedAt.UTC(),
		Recommendations: make([]SnapshotRecommendation, 0, len(r.Recommendations)),
		SymbolsStatus:   make([]SnapshotStatus, 0, len(r.Statuses)),
		RunID:           r.RunID,
		Timezone:        r.Timezone,
		LongTerm:        horizonRows(r, contracts.HorizonLong),
		MidTerm:         horizonRows(r, contracts.HorizonMid),
		ShortTerm:       horizonRows(r, contracts.HorizonShort),
		RecentRuns:      []storage.RunSummary{},
	}
	if len(recent) > RecentRunsLimit {
		recent = recent[:RecentRunsLimit]
	}
	s.RecentRuns = append(s.RecentRuns, recent...)

	for _, rec := range r.Recommendations {
		indicators := rec.Indicators
		if indicators == nil {
			indicators = map[string]float64{}
		}
		s.Recommendations = append(s.Recommendations, SnapshotRecommendation{
			Symbol:     rec.Symbol.String(),
			Rank:       rec.Rank,
			Score:      rec.Score,
			Indicators: indicators,
		})
	}

	for _, st := range r.Statuses {
		s.SymbolsStatus = append(s.SymbolsStatus, SnapshotStatus{
			Symbol: st.Symbol.String(),
			Status: string(st.Status),
		})
	}

	return s
}

func horizonRows(r *contracts.RunResult, hz contracts.Horizon) []contracts.HorizonScore {
	rows := r.Horizons[hz]
	if rows == nil {
		return []contracts.HorizonScore{}
	}
	return rows
}
