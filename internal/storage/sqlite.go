package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/logger"
)

const dateLayout = "2006-01-02"

// SQLiteStore is the default single-file backend
// ⭐ SSOT: SQLite 스키마와 쿼리는 여기서만
type SQLiteStore struct {
	db     *sql.DB
	opts   Options
	logger *logger.Logger
}

// OpenSQLite opens (or creates) the database file and runs migrations.
func OpenSQLite(ctx context.Context, path string, opts Options, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		opts:   opts,
		logger: log.WithField("module", "storage.sqlite"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.WithField("path", path).Info("SQLite store opened")
	return s, nil
}

// sqliteDSN applies the pragmas on every connection the pool opens
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_data (
			symbol     TEXT    NOT NULL,
			trade_date TEXT    NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER NOT NULL,
			source     TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, trade_date)
		)`,

		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id               TEXT PRIMARY KEY,
			started_at           INTEGER NOT NULL,
			finished_at          INTEGER NOT NULL,
			generated_at         INTEGER NOT NULL,
			status               TEXT    NOT NULL,
			mode                 TEXT    NOT NULL,
			range_from           TEXT    NOT NULL,
			range_to             TEXT    NOT NULL,
			config_hash          TEXT    NOT NULL DEFAULT '',
			timezone             TEXT    NOT NULL DEFAULT '',
			symbol_count         INTEGER NOT NULL,
			ok_count             INTEGER NOT NULL,
			fallback_count       INTEGER NOT NULL,
			failed_count         INTEGER NOT NULL,
			recommendation_count INTEGER NOT NULL,
			rows_written         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished ON pipeline_runs(finished_at)`,

		`CREATE TABLE IF NOT EXISTS run_symbols (
			run_id     TEXT    NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
			symbol     TEXT    NOT NULL,
			position   INTEGER NOT NULL,
			status     TEXT    NOT NULL,
			source     TEXT    NOT NULL DEFAULT '',
			reason     TEXT    NOT NULL DEFAULT '',
			indicators TEXT,
			horizons   TEXT,
			PRIMARY KEY (run_id, symbol)
		)`,

		`CREATE TABLE IF NOT EXISTS run_recommendations (
			run_id     TEXT    NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
			rank       INTEGER NOT NULL,
			symbol     TEXT    NOT NULL,
			score      REAL    NOT NULL,
			indicators TEXT    NOT NULL,
			PRIMARY KEY (run_id, rank)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// WriteBatch implements Store
func (s *SQLiteStore) WriteBatch(ctx context.Context, result *contracts.RunResult) error {
	b, err := newBatch(result)
	if err != nil {
		return persistenceError("prepare batch", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.writeRun(ctx, tx, b); err != nil {
		return err
	}

	pruned := int64(0)
	if cutoff, ok := retentionCutoff(b.run.GeneratedAt, s.opts.RetentionDays); ok {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM pipeline_runs WHERE started_at < ? AND run_id <> ?`,
			cutoff.UnixNano(), b.run.RunID)
		if err != nil {
			return persistenceError("prune runs", err)
		}
		pruned, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":       b.run.RunID,
		"price_rows":   len(b.prices),
		"symbols":      len(b.symbols),
		"recs":         len(b.recs),
		"pruned_runs":  pruned,
		"rows_written": b.run.RowsWritten,
	}).Info("Batch written")
	return nil
}

func (s *SQLiteStore) writeRun(ctx context.Context, tx *sql.Tx, b *batch) error {
	r := b.run
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			run_id, started_at, finished_at, generated_at, status, mode,
			range_from, range_to, config_hash, timezone, symbol_count,
			ok_count, fallback_count, failed_count, recommendation_count, rows_written
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.GeneratedAt.UnixNano(), r.Status, r.Mode,
		r.RangeFrom.Format(dateLayout), r.RangeTo.Format(dateLayout), r.ConfigHash, r.Timezone, r.Symbols,
		r.Counts[contracts.StatusOK], r.Counts[contracts.StatusFallbackUsed], r.Counts[contracts.StatusFailed],
		r.Recs, r.RowsWritten,
	); err != nil {
		return persistenceError("insert run", err)
	}

	priceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_data (symbol, trade_date, open, high, low, close, volume, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		return persistenceError("prepare price upsert", err)
	}
	defer priceStmt.Close()

	now := r.GeneratedAt.UnixNano()
	for _, p := range b.prices {
		if _, err := priceStmt.ExecContext(ctx,
			p.Symbol, p.Date.Format(dateLayout), p.Open, p.High, p.Low, p.Close, p.Volume, p.Source, now,
		); err != nil {
			return persistenceError("upsert price", err)
		}
	}

	for _, sym := range b.symbols {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_symbols (run_id, symbol, position, status, source, reason, indicators, horizons)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, sym.Symbol, sym.Position, sym.Status, sym.Source, sym.Reason,
			nullableJSON(sym.Indicators), nullableJSON(sym.Horizons),
		); err != nil {
			return persistenceError("insert symbol status", err)
		}
	}

	for _, rec := range b.recs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_recommendations (run_id, rank, symbol, score, indicators)
			VALUES (?, ?, ?, ?, ?)`,
			r.RunID, rec.Rank, rec.Symbol, rec.Score, string(rec.Indicators),
		); err != nil {
			return persistenceError("insert recommendation", err)
		}
	}

	return nil
}

const sqliteRunColumns = `run_id, started_at, finished_at, generated_at, status, mode,
	range_from, range_to, config_hash, timezone, symbol_count,
	ok_count, fallback_count, failed_count, recommendation_count, rows_written`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteRun(row rowScanner) (runRow, error) {
	var (
		r                            runRow
		started, finished, generated int64
		from, to                     string
		ok, fallback, failed         int
	)
	if err := row.Scan(&r.RunID, &started, &finished, &generated, &r.Status, &r.Mode,
		&from, &to, &r.ConfigHash, &r.Timezone, &r.Symbols,
		&ok, &fallback, &failed, &r.Recs, &r.RowsWritten); err != nil {
		return runRow{}, err
	}

	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finished).UTC()
	r.GeneratedAt = time.Unix(0, generated).UTC()
	r.RangeFrom, _ = time.Parse(dateLayout, from)
	r.RangeTo, _ = time.Parse(dateLayout, to)
	r.Counts = map[contracts.FetchStatus]int{
		contracts.StatusOK:           ok,
		contracts.StatusFallbackUsed: fallback,
		contracts.StatusFailed:       failed,
	}
	return r, nil
}

// ReadLatest implements Store
func (s *SQLiteStore) ReadLatest(ctx context.Context) (*contracts.RunResult, error) {
	run, err := scanSQLiteRun(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteRunColumns+`
		FROM pipeline_runs
		ORDER BY finished_at DESC, run_id DESC
		LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("read latest run", err)
	}

	symbols, err := s.readSymbols(ctx, run.RunID)
	if err != nil {
		return nil, persistenceError("read symbols", err)
	}
	recs, err := s.readRecommendations(ctx, run.RunID)
	if err != nil {
		return nil, persistenceError("read recommendations", err)
	}

	result, err := assemble(run, symbols, recs)
	if err != nil {
		return nil, persistenceError("assemble run", err)
	}
	return result, nil
}

func (s *SQLiteStore) readSymbols(ctx context.Context, runID string) ([]symbolRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, position, status, source, reason, indicators, horizons
		FROM run_symbols WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []symbolRow
	for rows.Next() {
		var (
			r                    symbolRow
			indicators, horizons sql.NullString
		)
		if err := rows.Scan(&r.Symbol, &r.Position, &r.Status, &r.Source, &r.Reason, &indicators, &horizons); err != nil {
			return nil, err
		}
		if indicators.Valid {
			r.Indicators = []byte(indicators.String)
		}
		if horizons.Valid {
			r.Horizons = []byte(horizons.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) readRecommendations(ctx context.Context, runID string) ([]recRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, symbol, score, indicators
		FROM run_recommendations WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recRow
	for rows.Next() {
		var (
			r          recRow
			indicators string
		)
		if err := rows.Scan(&r.Rank, &r.Symbol, &r.Score, &indicators); err != nil {
			return nil, err
		}
		r.Indicators = []byte(indicators)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentRuns implements Store
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteRunColumns+`
		FROM pipeline_runs
		ORDER BY finished_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, persistenceError("list runs", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, persistenceError("scan run", err)
		}
		out = append(out, run.summary())
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list runs", err)
	}
	return out, nil
}

// SetRunStatus implements Store
func (s *SQLiteStore) SetRunStatus(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pipeline_runs SET status = ? WHERE run_id = ?`, status, runID)
	if err != nil {
		return persistenceError("set run status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistenceError("set run status", fmt.Errorf("run %s not found", runID))
	}
	return nil
}

// Ping implements Store
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PriceCount returns stored price rows for a symbol
func (s *SQLiteStore) PriceCount(ctx context.Context, symbol contracts.Symbol) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_data WHERE symbol = ?`, symbol.String()).Scan(&n)
	return n, err
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
