package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/pipelineconfig"
	"github.com/wonny/quantsnap/internal/scheduler"
	"github.com/wonny/quantsnap/internal/storage"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	heavyRule = "═══════════════════════════════════════════════════════════"
	lightRule = "───────────────────────────────────────────────────────────"
)

// PrintRunHeader prints what a run is about to do
func PrintRunHeader(cfg *pipelineconfig.Config, path string) {
	fmt.Println()
	fmt.Println(heavyRule)
	fmt.Println("  Pipeline run")
	fmt.Println(lightRule)
	fmt.Printf("  Config    : %s\n", path)
	fmt.Printf("  Universe  : %s (max %d)\n", cfg.Universe.Mode, cfg.Universe.MaxSymbols)
	fmt.Printf("  Sources   : %s\n", strings.Join(cfg.Fetch.Sources, " → "))
	fmt.Printf("  Target    : %.2f%% annual, top %d\n", cfg.Pipeline.TargetAnnualReturn*100, cfg.Pipeline.MaxRecommendations)
	fmt.Println(lightRule)
}

// PrintRunSummary prints statuses and recommendations of one run
func PrintRunSummary(r *contracts.RunResult, exportPath string) {
	counts := r.StatusCounts()

	fmt.Println()
	fmt.Println(heavyRule)
	fmt.Printf("  Run %s  [%s]\n", r.RunID, r.State)
	fmt.Println(lightRule)
	if !r.GeneratedAt.IsZero() {
		fmt.Printf("  Generated : %s\n", r.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Printf("  Symbols   : %d (ok %d, fallback %d, failed %d)\n",
		len(r.Statuses), counts[contracts.StatusOK], counts[contracts.StatusFallbackUsed], counts[contracts.StatusFailed])

	switch {
	case r.Skipped:
		fmt.Println("  ⚠️  No symbol fetched: store and snapshot left unchanged")
	case r.State == contracts.StateDone:
		fmt.Printf("  Snapshot  : %s\n", exportPath)
	}

	if len(r.Recommendations) > 0 {
		fmt.Println(lightRule)
		fmt.Printf("  %-4s %-8s %10s\n", "Rank", "Symbol", "Score")
		for _, rec := range r.Recommendations {
			fmt.Printf("  %-4d %-8s %10.4f\n", rec.Rank, rec.Symbol, rec.Score)
		}
	}

	if len(r.Horizons) > 0 {
		fmt.Println(lightRule)
		for _, h := range contracts.AllHorizons() {
			rows := r.Horizons[h]
			if len(rows) == 0 {
				continue
			}
			buys := 0
			for _, row := range rows {
				if row.Signal == contracts.SignalBuy {
					buys++
				}
			}
			top := rows[0]
			fmt.Printf("  %-10s: top %s %d (%s), BUY %d/%d\n", h, top.Symbol, top.Score, top.Signal, buys, len(rows))
		}
	}

	var failed []string
	for _, s := range r.Statuses {
		if s.Status == contracts.StatusFailed {
			failed = append(failed, s.Symbol.String())
		}
	}
	if len(failed) > 0 {
		fmt.Println(lightRule)
		fmt.Printf("  Failed    : %s\n", strings.Join(failed, ", "))
	}
	fmt.Println(heavyRule)
}

// PrintRecentRuns prints one line per stored run
func PrintRecentRuns(runs []storage.RunSummary) {
	fmt.Println()
	fmt.Println("Recent runs:")
	for _, r := range runs {
		fmt.Printf("  %s  %-36s  %-16s %-13s ok=%d fb=%d failed=%d recs=%d rows=%d\n",
			r.FinishedAt.Format("2006-01-02 15:04"), r.RunID, r.Mode, r.Status,
			r.OKCount, r.FallbackCount, r.FailedCount, r.RecommendationCount, r.RowsWritten)
	}
}

// printJobStats prints one line per scheduled job
func printJobStats(stats map[string]scheduler.JobStats) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Println("Jobs:")
	for _, name := range names {
		st := stats[name]
		last := "never"
		if st.LastRun != nil {
			last = st.LastRun.Format(time.RFC3339)
		}
		fmt.Printf("  %-12s runs=%d ok=%d failed=%d skipped=%d rate=%.0f%% last=%s\n",
			name, st.TotalRuns, st.SuccessCount, st.FailureCount, st.SkippedCount, st.SuccessRate*100, last)
	}
}
