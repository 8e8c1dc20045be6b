package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/horizon"
)

// Row shapes shared by both backends

type runRow struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	GeneratedAt time.Time
	Status      string
	Mode        string
	RangeFrom   time.Time
	RangeTo     time.Time
	ConfigHash  string
	Timezone    string
	Counts      map[contracts.FetchStatus]int
	Symbols     int
	Recs        int
	RowsWritten int
}

type priceRow struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Source string
}

type symbolRow struct {
	Symbol     string
	Position   int
	Status     string
	Source     string
	Reason     string
	Indicators []byte // JSON map[name]IndicatorValue, null when no history
	Horizons   []byte // JSON map[horizon]HorizonScore, null when unscored
}

type recRow struct {
	Rank       int
	Symbol     string
	Score      float64
	Indicators []byte // JSON map[name]float64
}

type batch struct {
	run     runRow
	prices  []priceRow
	symbols []symbolRow
	recs    []recRow
}

// newBatch flattens a RunResult into rows. Price rows are ordered by
// symbol then date so writes are deterministic.
func newBatch(r *contracts.RunResult) (*batch, error) {
	b := &batch{}

	for symbol, h := range r.Histories {
		for _, p := range h.Points {
			b.prices = append(b.prices, priceRow{
				Symbol: symbol.String(),
				Date:   p.Date,
				Open:   p.Open,
				High:   p.High,
				Low:    p.Low,
				Close:  p.Close,
				Volume: p.Volume,
				Source: h.Source,
			})
		}
	}
	sort.Slice(b.prices, func(i, j int) bool {
		if b.prices[i].Symbol != b.prices[j].Symbol {
			return b.prices[i].Symbol < b.prices[j].Symbol
		}
		return b.prices[i].Date.Before(b.prices[j].Date)
	})

	for i, s := range r.Statuses {
		row := symbolRow{
			Symbol:   s.Symbol.String(),
			Position: i,
			Status:   string(s.Status),
			Source:   s.Source,
			Reason:   s.Reason,
		}
		if set, ok := r.Indicators[s.Symbol]; ok {
			data, err := json.Marshal(set.Values)
			if err != nil {
				return nil, fmt.Errorf("marshal indicators for %s: %w", s.Symbol, err)
			}
			row.Indicators = data
		}
		if scores := horizonsOf(r, s.Symbol); len(scores) > 0 {
			data, err := json.Marshal(scores)
			if err != nil {
				return nil, fmt.Errorf("marshal horizons for %s: %w", s.Symbol, err)
			}
			row.Horizons = data
		}
		b.symbols = append(b.symbols, row)
	}

	for _, rec := range r.Recommendations {
		data, err := json.Marshal(rec.Indicators)
		if err != nil {
			return nil, fmt.Errorf("marshal recommendation %s: %w", rec.Symbol, err)
		}
		b.recs = append(b.recs, recRow{
			Rank:       rec.Rank,
			Symbol:     rec.Symbol.String(),
			Score:      rec.Score,
			Indicators: data,
		})
	}

	b.run = runRow{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		GeneratedAt: r.GeneratedAt.UTC(),
		Status:      RunStatusDone,
		Mode:        r.Mode,
		RangeFrom:   r.Range.From,
		RangeTo:     r.Range.To,
		ConfigHash:  r.ConfigHash,
		Timezone:    r.Timezone,
		Counts:      r.StatusCounts(),
		Symbols:     len(r.Statuses),
		Recs:        len(b.recs),
		RowsWritten: rowsWritten(len(b.prices), len(b.symbols), len(b.recs)),
	}

	return b, nil
}

// horizonsOf picks one symbol's row out of every horizon table
func horizonsOf(r *contracts.RunResult, symbol contracts.Symbol) map[contracts.Horizon]contracts.HorizonScore {
	out := map[contracts.Horizon]contracts.HorizonScore{}
	for h, rows := range r.Horizons {
		for _, row := range rows {
			if row.Symbol == symbol {
				out[h] = row
				break
			}
		}
	}
	return out
}

// assemble rebuilds a RunResult from stored rows
func assemble(run runRow, symbols []symbolRow, recs []recRow) (*contracts.RunResult, error) {
	result := contracts.NewRunResult(run.RunID, run.StartedAt)
	result.FinishedAt = run.FinishedAt
	result.GeneratedAt = run.GeneratedAt
	result.Mode = run.Mode
	result.Range = contracts.DateRange{From: run.RangeFrom, To: run.RangeTo}
	result.ConfigHash = run.ConfigHash
	result.Timezone = run.Timezone
	result.State = contracts.StateDone
	for _, h := range contracts.AllHorizons() {
		result.Horizons[h] = []contracts.HorizonScore{}
	}

	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Position < symbols[j].Position })
	for _, s := range symbols {
		if !contracts.FetchStatus(s.Status).IsValid() {
			return nil, fmt.Errorf("unknown status %q for %s", s.Status, s.Symbol)
		}
		symbol := contracts.Symbol(s.Symbol)
		result.Symbols = append(result.Symbols, symbol)
		result.Statuses = append(result.Statuses, contracts.SymbolStatus{
			Symbol: symbol,
			Status: contracts.FetchStatus(s.Status),
			Source: s.Source,
			Reason: s.Reason,
		})

		if len(s.Horizons) > 0 {
			scores := map[contracts.Horizon]contracts.HorizonScore{}
			if err := json.Unmarshal(s.Horizons, &scores); err != nil {
				return nil, fmt.Errorf("decode horizons for %s: %w", s.Symbol, err)
			}
			for h, row := range scores {
				result.Horizons[h] = append(result.Horizons[h], row)
			}
		}

		if len(s.Indicators) == 0 {
			continue
		}
		set := contracts.NewIndicatorSet(symbol)
		if err := json.Unmarshal(s.Indicators, &set.Values); err != nil {
			return nil, fmt.Errorf("decode indicators for %s: %w", s.Symbol, err)
		}
		result.Indicators[symbol] = set
	}
	for _, rows := range result.Horizons {
		horizon.Sort(rows)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Rank < recs[j].Rank })
	for _, r := range recs {
		values := map[string]float64{}
		if err := json.Unmarshal(r.Indicators, &values); err != nil {
			return nil, fmt.Errorf("decode recommendation %s: %w", r.Symbol, err)
		}
		result.Recommendations = append(result.Recommendations, contracts.Recommendation{
			Symbol:     contracts.Symbol(r.Symbol),
			Rank:       r.Rank,
			Score:      r.Score,
			Indicators: values,
		})
	}

	return result, nil
}

func (r runRow) summary() RunSummary {
	return RunSummary{
		RunID:               r.RunID,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
		Status:              r.Status,
		Mode:                r.Mode,
		ConfigHash:          r.ConfigHash,
		SymbolCount:         r.Symbols,
		OKCount:             r.Counts[contracts.StatusOK],
		FallbackCount:       r.Counts[contracts.StatusFallbackUsed],
		FailedCount:         r.Counts[contracts.StatusFailed],
		RecommendationCount: r.Recs,
		RowsWritten:         r.RowsWritten,
	}
}

// nullableJSON stores a missing document as NULL
func nullableJSON(data []byte) interface{} {
	if data == nil {
		return nil
	}
	return string(data)
}

func retentionCutoff(generatedAt time.Time, days int) (time.Time, bool) {
	if days <= 0 {
		return time.Time{}, false
	}
	return generatedAt.AddDate(0, 0, -days), true
}
