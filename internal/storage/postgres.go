package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/database"
	"github.com/wonny/quantsnap/pkg/logger"
)

// PostgresStore keeps runs in the quant schema
// ⭐ SSOT: PostgreSQL 스키마와 쿼리는 여기서만
type PostgresStore struct {
	db     *database.DB
	opts   Options
	logger *logger.Logger
}

// OpenPostgres connects through pkg/database and runs migrations.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, opts Options, log *logger.Logger) (*PostgresStore, error) {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{
		db:     db,
		opts:   opts,
		logger: log.WithField("module", "storage.postgres"),
	}
	if err := db.Exec(ctx, postgresMigrations...); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info("PostgreSQL store opened")
	return s, nil
}

var postgresMigrations = []string{
	`CREATE SCHEMA IF NOT EXISTS quant`,

	`CREATE TABLE IF NOT EXISTS quant.price_data (
		symbol     TEXT        NOT NULL,
		trade_date DATE        NOT NULL,
		open       DOUBLE PRECISION NOT NULL,
		high       DOUBLE PRECISION NOT NULL,
		low        DOUBLE PRECISION NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		volume     BIGINT      NOT NULL,
		source     TEXT        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	)`,

	`CREATE TABLE IF NOT EXISTS quant.pipeline_runs (
		run_id               TEXT PRIMARY KEY,
		started_at           TIMESTAMPTZ NOT NULL,
		finished_at          TIMESTAMPTZ NOT NULL,
		generated_at         TIMESTAMPTZ NOT NULL,
		status               TEXT        NOT NULL,
		mode                 TEXT        NOT NULL,
		range_from           DATE        NOT NULL,
		range_to             DATE        NOT NULL,
		config_hash          TEXT        NOT NULL DEFAULT '',
		timezone             TEXT        NOT NULL DEFAULT '',
		symbol_count         INT         NOT NULL,
		ok_count             INT         NOT NULL,
		fallback_count       INT         NOT NULL,
		failed_count         INT         NOT NULL,
		recommendation_count INT         NOT NULL,
		rows_written         INT         NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_finished ON quant.pipeline_runs(finished_at DESC)`,

	`CREATE TABLE IF NOT EXISTS quant.run_symbols (
		run_id     TEXT  NOT NULL REFERENCES quant.pipeline_runs(run_id) ON DELETE CASCADE,
		symbol     TEXT  NOT NULL,
		position   INT   NOT NULL,
		status     TEXT  NOT NULL,
		source     TEXT  NOT NULL DEFAULT '',
		reason     TEXT  NOT NULL DEFAULT '',
		indicators JSONB,
		horizons   JSONB,
		PRIMARY KEY (run_id, symbol)
	)`,

	`CREATE TABLE IF NOT EXISTS quant.run_recommendations (
		run_id     TEXT  NOT NULL REFERENCES quant.pipeline_runs(run_id) ON DELETE CASCADE,
		rank       INT   NOT NULL,
		symbol     TEXT  NOT NULL,
		score      DOUBLE PRECISION NOT NULL,
		indicators JSONB NOT NULL,
		PRIMARY KEY (run_id, rank)
	)`,

	`ALTER TABLE quant.pipeline_runs ADD COLUMN IF NOT EXISTS timezone TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE quant.run_symbols ADD COLUMN IF NOT EXISTS horizons JSONB`,
}

// WriteBatch implements Store
func (s *PostgresStore) WriteBatch(ctx context.Context, result *contracts.RunResult) error {
	b, err := newBatch(result)
	if err != nil {
		return persistenceError("prepare batch", err)
	}

	var pruned int64
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.insertRun(ctx, tx, b); err != nil {
			return err
		}
		if err := sendRows(ctx, tx, b); err != nil {
			return err
		}

		cutoff, ok := retentionCutoff(b.run.GeneratedAt, s.opts.RetentionDays)
		if !ok {
			return nil
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM quant.pipeline_runs WHERE started_at < $1 AND run_id <> $2`,
			cutoff, b.run.RunID)
		if err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
		pruned = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return persistenceError("write batch", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"run_id":       b.run.RunID,
		"price_rows":   len(b.prices),
		"pruned_runs":  pruned,
		"rows_written": b.run.RowsWritten,
	}).Info("Batch written")
	return nil
}

func (s *PostgresStore) insertRun(ctx context.Context, tx pgx.Tx, b *batch) error {
	r := b.run
	_, err := tx.Exec(ctx, `
		INSERT INTO quant.pipeline_runs (
			run_id, started_at, finished_at, generated_at, status, mode,
			range_from, range_to, config_hash, timezone, symbol_count,
			ok_count, fallback_count, failed_count, recommendation_count, rows_written
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.RunID, r.StartedAt, r.FinishedAt, r.GeneratedAt, r.Status, r.Mode,
		r.RangeFrom, r.RangeTo, r.ConfigHash, r.Timezone, r.Symbols,
		r.Counts[contracts.StatusOK], r.Counts[contracts.StatusFallbackUsed], r.Counts[contracts.StatusFailed],
		r.Recs, r.RowsWritten,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// sendRows queues every child row in one pgx batch
func sendRows(ctx context.Context, tx pgx.Tx, b *batch) error {
	batch := &pgx.Batch{}

	for _, p := range b.prices {
		batch.Queue(`
			INSERT INTO quant.price_data (symbol, trade_date, open, high, low, close, volume, source, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, trade_date) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				source = EXCLUDED.source,
				updated_at = EXCLUDED.updated_at`,
			p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume, p.Source, b.run.GeneratedAt)
	}

	for _, sym := range b.symbols {
		batch.Queue(`
			INSERT INTO quant.run_symbols (run_id, symbol, position, status, source, reason, indicators, horizons)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb)`,
			b.run.RunID, sym.Symbol, sym.Position, sym.Status, sym.Source, sym.Reason,
			nullableJSON(sym.Indicators), nullableJSON(sym.Horizons))
	}

	for _, rec := range b.recs {
		batch.Queue(`
			INSERT INTO quant.run_recommendations (run_id, rank, symbol, score, indicators)
			VALUES ($1, $2, $3, $4, $5::jsonb)`,
			b.run.RunID, rec.Rank, rec.Symbol, rec.Score, string(rec.Indicators))
	}

	if batch.Len() == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch row %d: %w", i, err)
		}
	}
	return br.Close()
}

const postgresRunColumns = `run_id, started_at, finished_at, generated_at, status, mode,
	range_from, range_to, config_hash, timezone, symbol_count,
	ok_count, fallback_count, failed_count, recommendation_count, rows_written`

func scanPostgresRun(row pgx.Row) (runRow, error) {
	var (
		r                    runRow
		ok, fallback, failed int
	)
	if err := row.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.GeneratedAt, &r.Status, &r.Mode,
		&r.RangeFrom, &r.RangeTo, &r.ConfigHash, &r.Timezone, &r.Symbols,
		&ok, &fallback, &failed, &r.Recs, &r.RowsWritten); err != nil {
		return runRow{}, err
	}

	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	r.GeneratedAt = r.GeneratedAt.UTC()
	r.Counts = map[contracts.FetchStatus]int{
		contracts.StatusOK:           ok,
		contracts.StatusFallbackUsed: fallback,
		contracts.StatusFailed:       failed,
	}
	return r, nil
}

// ReadLatest implements Store
func (s *PostgresStore) ReadLatest(ctx context.Context) (*contracts.RunResult, error) {
	run, err := scanPostgresRun(s.db.Pool.QueryRow(ctx, `
		SELECT `+postgresRunColumns+`
		FROM quant.pipeline_runs
		ORDER BY finished_at DESC, run_id DESC
		LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) readSymbols(ctx context.Context, runID string) ([]symbolRow, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT symbol, position, status, source, reason, indicators::text, horizons::text
		FROM quant.run_symbols WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []symbolRow
	for rows.Next() {
		var (
			r                    symbolRow
			indicators, horizons *string
		)
		if err := rows.Scan(&r.Symbol, &r.Position, &r.Status, &r.Source, &r.Reason, &indicators, &horizons); err != nil {
			return nil, err
		}
		if indicators != nil {
			r.Indicators = []byte(*indicators)
		}
		if horizons != nil {
			r.Horizons = []byte(*horizons)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) readRecommendations(ctx context.Context, runID string) ([]recRow, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT rank, symbol, score, indicators::text
		FROM quant.run_recommendations WHERE run_id = $1 ORDER BY rank`, runID)
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
func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+postgresRunColumns+`
		FROM quant.pipeline_runs
		ORDER BY finished_at DESC, run_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, persistenceError("list runs", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		run, err := scanPostgresRun(rows)
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
func (s *PostgresStore) SetRunStatus(ctx context.Context, runID, status string) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE quant.pipeline_runs SET status = $1 WHERE run_id = $2`, status, runID)
	if err != nil {
		return persistenceError("set run status", err)
	}
	if tag.RowsAffected() == 0 {
		return persistenceError("set run status", fmt.Errorf("run %s not found", runID))
	}
	return nil
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	status, err := s.db.HealthCheck(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"response_time": status.ResponseTime.String(),
		"total_conns":   status.TotalConns,
		"idle_conns":    status.IdleConns,
		"acquired":      status.AcquiredConns,
	}).Debug("PostgreSQL health check")
	return nil
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
