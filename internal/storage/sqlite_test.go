package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/logger"
)

func openTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data", "quant.db")
	store, err := OpenSQLite(context.Background(), path, opts, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

// sampleRun builds a finished run: AAPL ok, MSFT via fallback, TSLA failed
func sampleRun(runID string, started time.Time) *contracts.RunResult {
	r := contracts.NewRunResult(runID, started)
	r.FinishedAt = started.Add(3 * time.Second)
	r.GeneratedAt = r.FinishedAt
	r.Mode = "manual"
	r.Range = contracts.DateRange{From: day(1), To: day(6)}
	r.ConfigHash = "abc123"
	r.Timezone = "America/New_York"
	r.State = contracts.StateDone
	r.Symbols = []contracts.Symbol{"AAPL", "MSFT", "TSLA"}

	r.Histories["AAPL"] = contracts.PriceHistory{
		Symbol: "AAPL",
		Source: "yahoo",
		Points: []contracts.PricePoint{
			{Date: day(2), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
			{Date: day(3), Open: 10.5, High: 12, Low: 10, Close: 11.75, Volume: 120},
		},
	}
	r.Histories["MSFT"] = contracts.PriceHistory{
		Symbol: "MSFT",
		Source: "stooq",
		Points: []contracts.PricePoint{
			{Date: day(2), Open: 20, High: 21, Low: 19, Close: 20.25, Volume: 300},
		},
	}

	aapl := contracts.NewIndicatorSet("AAPL")
	aapl.Values["momentum_20d"] = contracts.Available(0.12)
	aapl.Values["rsi_14"] = contracts.Unavailable("insufficient history")
	r.Indicators["AAPL"] = aapl

	msft := contracts.NewIndicatorSet("MSFT")
	msft.Values["momentum_20d"] = contracts.Available(-0.03)
	r.Indicators["MSFT"] = msft

	r.Statuses = []contracts.SymbolStatus{
		{Symbol: "AAPL", Status: contracts.StatusOK, Source: "yahoo"},
		{Symbol: "MSFT", Status: contracts.StatusFallbackUsed, Source: "stooq"},
		{Symbol: "TSLA", Status: contracts.StatusFailed, Reason: "fetch failed for TSLA"},
	}
	r.Horizons[contracts.HorizonShort] = []contracts.HorizonScore{
		{Symbol: "AAPL", TradeDate: day(3), Close: 11.75, Score: 100, Signal: contracts.SignalBuy, Source: "yahoo"},
		{Symbol: "MSFT", TradeDate: day(2), Close: 20.25, Score: 50, Signal: contracts.SignalSell, Source: "stooq"},
	}
	r.Horizons[contracts.HorizonLong] = []contracts.HorizonScore{
		{Symbol: "MSFT", TradeDate: day(2), Close: 20.25, Score: 61, Signal: contracts.SignalBuy, Source: "stooq"},
		{Symbol: "AAPL", TradeDate: day(3), Close: 11.75, Score: 44, Signal: contracts.SignalSell, Source: "yahoo"},
	}
	r.Horizons[contracts.HorizonMid] = []contracts.HorizonScore{}
	r.Recommendations = []contracts.Recommendation{
		{Symbol: "AAPL", Rank: 1, Score: 0.8, Indicators: map[string]float64{"momentum_20d": 0.12}},
		{Symbol: "MSFT", Rank: 2, Score: -0.1, Indicators: map[string]float64{"momentum_20d": -0.03}},
	}
	return r
}

func TestReadLatest_Empty(t *testing.T) {
	store := openTestStore(t, Options{})

	got, err := store.ReadLatest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	runs, err := store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWriteBatch_ReadLatest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	started := time.Date(2026, 3, 5, 21, 0, 0, 123456789, time.UTC)
	in := sampleRun("run-1", started)
	require.NoError(t, store.WriteBatch(ctx, in))

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.StartedAt.Equal(in.StartedAt))
	assert.True(t, got.GeneratedAt.Equal(in.GeneratedAt))
	assert.Equal(t, "manual", got.Mode)
	assert.Equal(t, "abc123", got.ConfigHash)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.Equal(t, contracts.StateDone, got.State)
	assert.True(t, got.Range.From.Equal(day(1)))
	assert.True(t, got.Range.To.Equal(day(6)))

	assert.Equal(t, in.Symbols, got.Symbols)
	assert.Equal(t, in.Statuses, got.Statuses)
	assert.Equal(t, in.Recommendations, got.Recommendations)

	require.Contains(t, got.Indicators, contracts.Symbol("AAPL"))
	assert.Equal(t, in.Indicators["AAPL"].Values, got.Indicators["AAPL"].Values)
	assert.NotContains(t, got.Indicators, contracts.Symbol("TSLA"))
	assert.Empty(t, got.Histories)

	assert.Equal(t, in.Horizons[contracts.HorizonShort], got.Horizons[contracts.HorizonShort])
	assert.Equal(t, in.Horizons[contracts.HorizonLong], got.Horizons[contracts.HorizonLong])
	require.NotNil(t, got.Horizons[contracts.HorizonMid])
	assert.Empty(t, got.Horizons[contracts.HorizonMid])

	n, err := store.PriceCount(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReadLatest_ReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	base := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-old", base)))
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-new", base.Add(time.Hour))))

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-new", got.RunID)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)

	s := runs[0]
	assert.Equal(t, RunStatusDone, s.Status)
	assert.Equal(t, 3, s.SymbolCount)
	assert.Equal(t, 1, s.OKCount)
	assert.Equal(t, 1, s.FallbackCount)
	assert.Equal(t, 1, s.FailedCount)
	assert.Equal(t, 2, s.RecommendationCount)
	// 3 prices + 3 statuses + 2 recommendations + 1 run
	assert.Equal(t, 9, s.RowsWritten)
}

func TestWriteBatch_PriceUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	base := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-1", base)))
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-2", base.Add(time.Hour))))

	n, err := store.PriceCount(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "same sessions must not duplicate")
}

func TestWriteBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	base := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-1", base)))

	// same run id again: the run insert fails and nothing else may land
	dup := sampleRun("run-1", base.Add(time.Hour))
	dup.Histories["NVDA"] = contracts.PriceHistory{
		Symbol: "NVDA",
		Source: "yahoo",
		Points: []contracts.PricePoint{{Date: day(2), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}},
	}

	err := store.WriteBatch(ctx, dup)
	require.Error(t, err)
	var perr *contracts.PersistenceError
	assert.True(t, errors.As(err, &perr))

	n, err := store.PriceCount(ctx, "NVDA")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(base))
}

func TestWriteBatch_FailsOnDuplicateSymbolStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	r := sampleRun("run-1", time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC))
	r.Statuses = append(r.Statuses, r.Statuses[0])

	require.Error(t, store.WriteBatch(ctx, r))

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "failed batch must leave no run behind")

	n, err := store.PriceCount(ctx, "AAPL")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteBatch_Retention(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{RetentionDays: 30})

	old := time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-old", old)))
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-recent", recent)))
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-now", now)))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"run-now", "run-recent"}, ids)
}

func TestRecentRuns_Limit(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	base := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.WriteBatch(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
}

func TestSummarize_MatchesStoredRow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	in := sampleRun("run-1", time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC))
	require.NoError(t, store.WriteBatch(ctx, in))

	runs, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runs[0], Summarize(in))
}

func TestSetRunStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-1", time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC))))
	require.NoError(t, store.SetRunStatus(ctx, "run-1", RunStatusExportFailed))

	runs, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusExportFailed, runs[0].Status)

	// the run itself is still readable
	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)

	err = store.SetRunStatus(ctx, "missing", RunStatusExportFailed)
	var perr *contracts.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestOpenSQLite_PragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	// force the pool to open a fresh connection per query
	store.db.SetMaxIdleConns(0)
	for i := 0; i < 2; i++ {
		var on int
		require.NoError(t, store.db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on))
		assert.Equal(t, 1, on)

		var mode string
		require.NoError(t, store.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
		assert.Equal(t, "wal", mode)
	}
}

func TestWriteBatch_RetentionCascadesAfterReconnect(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{RetentionDays: 30})
	store.db.SetMaxIdleConns(0)

	old := time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-old", old)))
	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-now", now)))

	var orphans int
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM run_symbols WHERE run_id = 'run-old'`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestReadLatest_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, Options{})

	require.NoError(t, store.WriteBatch(ctx, sampleRun("run-1", time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC))))
	_, err := store.db.ExecContext(ctx, `UPDATE run_symbols SET status = 'partial' WHERE symbol = 'AAPL'`)
	require.NoError(t, err)

	_, err = store.ReadLatest(ctx)
	var perr *contracts.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), "partial")
}

func TestPing(t *testing.T) {
	store := openTestStore(t, Options{})
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpen_DispatchesOnScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quant.db")

	store, err := Open(context.Background(), config.DatabaseConfig{URL: "sqlite://" + path}, Options{}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.DatabaseConfig{URL: "mysql://x"}, Options{}, logger.Nop())
	assert.Error(t, err)
}
