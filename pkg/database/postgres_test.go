package database

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/pkg/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if !strings.HasPrefix(url, "postgres") {
		t.Skip("DATABASE_URL is not a postgres URL, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, config.DatabaseConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	db := testDB(t)

	status, err := db.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.GreaterOrEqual(t, status.TotalConns, int32(1))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx,
		`DROP TABLE IF EXISTS tx_probe`,
		`CREATE TABLE tx_probe (id INT PRIMARY KEY)`,
	))
	t.Cleanup(func() { _ = db.Exec(context.Background(), `DROP TABLE IF EXISTS tx_probe`) })

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO tx_probe (id) VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tx_probe`).Scan(&count))
	assert.Equal(t, 0, count)
}
