package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/internal/api/handlers"
	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/metrics"
	"github.com/wonny/quantsnap/internal/scheduler"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *storage.SQLiteStore) {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "quant.db"), storage.Options{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	router := NewRouter(handlers.NewSnapshotHandler(store, logger.Nop()), nil, metrics.New().Handler(), logger.Nop())
	return router, store
}

func storedRun(id string, started time.Time) *contracts.RunResult {
	r := contracts.NewRunResult(id, started)
	r.FinishedAt = started.Add(time.Second)
	r.GeneratedAt = r.FinishedAt
	r.Mode = "manual"
	r.Timezone = "America/New_York"
	r.Symbols = []contracts.Symbol{"AAPL"}
	r.Statuses = []contracts.SymbolStatus{{Symbol: "AAPL", Status: contracts.StatusOK, Source: "yahoo"}}
	r.Recommendations = []contracts.Recommendation{
		{Symbol: "AAPL", Rank: 1, Score: 0.5, Indicators: map[string]float64{"expected_return": 0.3}},
	}
	r.Horizons[contracts.HorizonShort] = []contracts.HorizonScore{{
		Symbol:    "AAPL",
		TradeDate: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
		Close:     231.5,
		Score:     74,
		Signal:    contracts.SignalBuy,
		Source:    "yahoo",
	}}
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"quantsnap"}`, rec.Body.String())
}

func TestHealth_StoreUnavailable(t *testing.T) {
	router, store := newTestRouter(t)
	require.NoError(t, store.Close())

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
}

func TestSnapshotLatest_NotFoundWhenEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/snapshot/latest").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/latest").Code)
}

func TestSnapshotLatest(t *testing.T) {
	router, store := newTestRouter(t)
	started := time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteBatch(context.Background(), storedRun("run-1", started)))

	rec := get(t, router, "/api/snapshot/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"generated_at": "2026-03-06T21:00:01Z",
		"recommendations": [{"symbol":"AAPL","rank":1,"score":0.5,"indicators":{"expected_return":0.3}}],
		"symbols_status": [{"symbol":"AAPL","status":"ok"}],
		"run_id": "run-1",
		"timezone": "America/New_York",
		"long_term": [],
		"mid_term": [],
		"short_term": [{"symbol":"AAPL","trade_date":"2026-03-06T00:00:00Z","close":231.5,"score":74,"signal":"BUY","source":"yahoo"}],
		"recent_runs": [{
			"run_id": "run-1",
			"started_at": "2026-03-06T21:00:00Z",
			"finished_at": "2026-03-06T21:00:01Z",
			"status": "done",
			"mode": "manual",
			"config_hash": "",
			"symbol_count": 1,
			"ok_count": 1,
			"fallback_count": 0,
			"failed_count": 0,
			"recommendation_count": 1,
			"rows_written": 3
		}]
	}`, rec.Body.String())

	rec = get(t, router, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var run map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run["run_id"])
	assert.Equal(t, "DONE", run["state"])
}

func TestRuns(t *testing.T) {
	router, store := newTestRouter(t)
	base := time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.WriteBatch(context.Background(), storedRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	rec := get(t, router, "/api/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs  []storage.RunSummary `json:"runs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "c", body.Runs[0].RunID)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/runs?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/runs?limit=-1").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type jobStub struct {
	name string
	ran  chan struct{}
}

func (j *jobStub) Name() string     { return j.name }
func (j *jobStub) Schedule() string { return "0 18 * * 1-5" }

func (j *jobStub) Run(ctx context.Context) error {
	close(j.ran)
	return nil
}

func newJobsRouter(t *testing.T) (http.Handler, *jobStub) {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "quant.db"), storage.Options{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	job := &jobStub{name: "pipeline", ran: make(chan struct{})}
	sched := scheduler.New(time.UTC, logger.Nop())
	require.NoError(t, sched.AddJob(job))
	t.Cleanup(sched.Stop)

	router := NewRouter(
		handlers.NewSnapshotHandler(store, logger.Nop()),
		handlers.NewJobsHandler(sched, logger.Nop()),
		nil,
		logger.Nop(),
	)
	return router, job
}

func TestJobs_NotRegisteredWithoutScheduler(t *testing.T) {
	router, _ := newTestRouter(t)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/jobs").Code)
}

func TestJobs_RunAndHistory(t *testing.T) {
	router, job := newJobsRouter(t)

	rec := get(t, router, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs  []scheduler.JobStats `json:"jobs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "pipeline", list.Jobs[0].JobName)
	assert.Equal(t, "0 18 * * 1-5", list.Jobs[0].Schedule)
	assert.Zero(t, list.Jobs[0].TotalRuns)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/pipeline/run", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		rec := get(t, router, "/api/jobs/pipeline/history")
		if rec.Code != http.StatusOK {
			return false
		}
		var body struct {
			Results []scheduler.JobResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			return false
		}
		return len(body.Results) == 1 && body.Results[0].Success
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/jobs/pipeline/history?limit=0").Code)
}

func TestJobs_UnknownJob(t *testing.T) {
	router, _ := newJobsRouter(t)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/jobs/missing/history").Code)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/missing/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
