package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/logger"
)

func openPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if !strings.HasPrefix(url, "postgres") {
		t.Skip("DATABASE_URL is not a postgres URL, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := OpenPostgres(ctx, config.DatabaseConfig{URL: url, MaxConns: 2}, Options{}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres_WriteAndReadLatest(t *testing.T) {
	store := openPostgresStore(t)
	ctx := context.Background()

	runID := uuid.NewString()
	in := sampleRun(runID, time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond))
	t.Cleanup(func() {
		_ = store.db.Exec(context.Background(),
			`DELETE FROM quant.pipeline_runs WHERE run_id = '`+runID+`'`)
	})

	require.NoError(t, store.WriteBatch(ctx, in))

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, in.Statuses, got.Statuses)
	assert.Equal(t, in.Recommendations, got.Recommendations)
	assert.Equal(t, in.Indicators["AAPL"].Values, got.Indicators["AAPL"].Values)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.Equal(t, in.Horizons[contracts.HorizonShort], got.Horizons[contracts.HorizonShort])

	runs, err := store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 9, runs[0].RowsWritten)

	require.NoError(t, store.SetRunStatus(ctx, runID, RunStatusExportFailed))
	runs, err = store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, RunStatusExportFailed, runs[0].Status)

	assert.NoError(t, store.Ping(ctx))
}

func TestPostgres_DuplicateRunRollsBack(t *testing.T) {
	store := openPostgresStore(t)
	ctx := context.Background()

	runID := uuid.NewString()
	started := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Microsecond)
	t.Cleanup(func() {
		_ = store.db.Exec(context.Background(),
			`DELETE FROM quant.pipeline_runs WHERE run_id = '`+runID+`'`)
	})

	require.NoError(t, store.WriteBatch(ctx, sampleRun(runID, started)))
	require.Error(t, store.WriteBatch(ctx, sampleRun(runID, started.Add(time.Minute))))

	got, err := store.ReadLatest(ctx)
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(started))
}
