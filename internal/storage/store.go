package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/pkg/config"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Run statuses. Failed runs write nothing; a run whose batch committed
// but whose snapshot could not be published is flagged export_failed.
const (
	RunStatusDone         = "done"
	RunStatusExportFailed = "export_failed"
)

// Store persists run results. WriteBatch is all-or-nothing.
type Store interface {
	// WriteBatch stores the run, its prices, statuses and recommendations
	// in one transaction, and prunes runs older than the retention window.
	WriteBatch(ctx context.Context, result *contracts.RunResult) error

	// ReadLatest returns the most recently finished run, or (nil, nil) when
	// nothing has been stored. Histories are not reloaded.
	ReadLatest(ctx context.Context) (*contracts.RunResult, error)

	// RecentRuns lists run summaries, newest first
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// SetRunStatus updates the status of a stored run
	SetRunStatus(ctx context.Context, runID, status string) error

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error

	Close() error
}

// RunSummary is one row of pipeline_runs
type RunSummary struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Status              string    `json:"status"`
	Mode                string    `json:"mode"`
	ConfigHash          string    `json:"config_hash"`
	SymbolCount         int       `json:"symbol_count"`
	OKCount             int       `json:"ok_count"`
	FallbackCount       int       `json:"fallback_count"`
	FailedCount         int       `json:"failed_count"`
	RecommendationCount int       `json:"recommendation_count"`
	RowsWritten         int       `json:"rows_written"`
}

// Summarize builds the summary row a run will have once written
func Summarize(r *contracts.RunResult) RunSummary {
	counts := r.StatusCounts()
	return RunSummary{
		RunID:               r.RunID,
		StartedAt:           r.StartedAt.UTC(),
		FinishedAt:          r.FinishedAt.UTC(),
		Status:              RunStatusDone,
		Mode:                r.Mode,
		ConfigHash:          r.ConfigHash,
		SymbolCount:         len(r.Statuses),
		OKCount:             counts[contracts.StatusOK],
		FallbackCount:       counts[contracts.StatusFallbackUsed],
		FailedCount:         counts[contracts.StatusFailed],
		RecommendationCount: len(r.Recommendations),
		RowsWritten:         rowsWritten(r.PriceRowCount(), len(r.Statuses), len(r.Recommendations)),
	}
}

// rowsWritten counts price, status and recommendation rows plus the run row
func rowsWritten(prices, symbols, recs int) int {
	return prices + symbols + recs + 1
}

// Options tune a store
type Options struct {
	// RetentionDays prunes runs whose start is older than this; 0 keeps all
	RetentionDays int
}

// Open selects the backend from the DATABASE_URL scheme
func Open(ctx context.Context, cfg config.DatabaseConfig, opts Options, log *logger.Logger) (Store, error) {
	switch cfg.Driver() {
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath(), opts, log)
	case "postgres":
		return OpenPostgres(ctx, cfg, opts, log)
	default:
		return nil, fmt.Errorf("unsupported database url %q", cfg.URL)
	}
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &contracts.PersistenceError{Op: op, Err: err}
}
