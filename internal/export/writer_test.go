package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/pkg/logger"
)

func testResult() *contracts.RunResult {
	r := contracts.NewRunResult("run-1", time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC))
	r.GeneratedAt = time.Date(2026, 3, 5, 21, 0, 4, 0, time.UTC)
	r.Recommendations = []contracts.Recommendation{
		{Symbol: "AAPL", Rank: 1, Score: 0.42, Indicators: map[string]float64{"expected_return": 0.2, "volatility_20d": 0.3}},
		{Symbol: "MSFT", Rank: 2, Score: 0.1},
	}
	r.Statuses = []contracts.SymbolStatus{
		{Symbol: "AAPL", Status: contracts.StatusOK, Source: "yahoo"},
		{Symbol: "MSFT", Status: contracts.StatusFallbackUsed, Source: "stooq"},
		{Symbol: "TSLA", Status: contracts.StatusFailed, Reason: "boom"},
	}
	r.Timezone = "America/New_York"
	r.Horizons[contracts.HorizonShort] = []contracts.HorizonScore{
		{Symbol: "AAPL", TradeDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), Close: 231.5, Score: 74, Signal: contracts.SignalBuy, Source: "yahoo"},
	}
	return r
}

func readJSON(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestStageCommit_WritesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs", "data", "latest.json")
	w := NewWriter(path, logger.Nop())

	staged, err := w.Stage(testResult(), nil)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is published before commit")

	require.NoError(t, staged.Commit())

	doc := readJSON(t, path)
	assert.Len(t, doc, 9)
	assert.Equal(t, "2026-03-05T21:00:04Z", doc["generated_at"])
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "America/New_York", doc["timezone"])

	recs := doc["recommendations"].([]interface{})
	require.Len(t, recs, 2)
	first := recs[0].(map[string]interface{})
	assert.Equal(t, "AAPL", first["symbol"])
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, 0.42, first["score"])
	assert.Equal(t, map[string]interface{}{"expected_return": 0.2, "volatility_20d": 0.3}, first["indicators"])

	second := recs[1].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{}, second["indicators"])

	statuses := doc["symbols_status"].([]interface{})
	require.Len(t, statuses, 3)
	assert.Equal(t, map[string]interface{}{"symbol": "MSFT", "status": "fallback_used"}, statuses[1])
	assert.Equal(t, map[string]interface{}{"symbol": "TSLA", "status": "failed"}, statuses[2])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestStage_EmptyListsAreArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	r := contracts.NewRunResult("run-1", time.Now())

	staged, err := NewWriter(path, logger.Nop()).Stage(r, nil)
	require.NoError(t, err)
	require.NoError(t, staged.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recommendations": []`)
	assert.Contains(t, string(data), `"symbols_status": []`)
	assert.Contains(t, string(data), `"long_term": []`)
	assert.Contains(t, string(data), `"mid_term": []`)
	assert.Contains(t, string(data), `"short_term": []`)
	assert.Contains(t, string(data), `"recent_runs": []`)
}

func TestNewSnapshot_HorizonsAndRecentRuns(t *testing.T) {
	recent := make([]storage.RunSummary, RecentRunsLimit+5)
	for i := range recent {
		recent[i] = storage.RunSummary{RunID: fmt.Sprintf("run-%d", i)}
	}

	s := NewSnapshot(testResult(), recent)

	require.Len(t, s.ShortTerm, 1)
	assert.Equal(t, contracts.Symbol("AAPL"), s.ShortTerm[0].Symbol)
	assert.Equal(t, 74, s.ShortTerm[0].Score)
	assert.Equal(t, contracts.SignalBuy, s.ShortTerm[0].Signal)
	assert.NotNil(t, s.LongTerm)
	assert.Empty(t, s.LongTerm)

	require.Len(t, s.RecentRuns, RecentRunsLimit)
	assert.Equal(t, "run-0", s.RecentRuns[0].RunID)

	data, err := json.Marshal(s.ShortTerm[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"AAPL","trade_date":"2026-03-05T00:00:00Z","close":231.5,"score":74,"signal":"BUY","source":"yahoo"}`, string(data))
}

func TestDiscard_KeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"previous":true}`), 0o644))

	staged, err := NewWriter(path, logger.Nop()).Stage(testResult(), nil)
	require.NoError(t, err)
	staged.Discard()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"previous":true}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be removed")
}

func TestCommit_ReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"previous":true}`), 0o644))

	staged, err := NewWriter(path, logger.Nop()).Stage(testResult(), nil)
	require.NoError(t, err)
	require.NoError(t, staged.Commit())
	staged.Discard()

	doc := readJSON(t, path)
	assert.NotContains(t, doc, "previous")
	assert.Contains(t, doc, "generated_at")
}

func TestCommit_Twice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")

	staged, err := NewWriter(path, logger.Nop()).Stage(testResult(), nil)
	require.NoError(t, err)
	require.NoError(t, staged.Commit())

	err = staged.Commit()
	var exportErr *contracts.ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, path, exportErr.Path)
}

func TestCommit_RenameFailureRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.json")

	staged, err := NewWriter(path, logger.Nop()).Stage(testResult(), nil)
	require.NoError(t, err)

	// a non-empty directory at the target cannot be replaced by rename
	require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o755))

	err = staged.Commit()
	var exportErr *contracts.ExportError
	require.True(t, errors.As(err, &exportErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "latest.json", entries[0].Name())
}

func TestStage_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// parent is a regular file, so MkdirAll fails regardless of user
	_, err := NewWriter(filepath.Join(blocker, "latest.json"), logger.Nop()).Stage(testResult(), nil)
	var exportErr *contracts.ExportError
	require.True(t, errors.As(err, &exportErr))
}
