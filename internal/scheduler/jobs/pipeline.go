package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/pipelineconfig"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Runner executes one pipeline run (implemented by pipeline.Orchestrator)
type Runner interface {
	Run(ctx context.Context, cfg *pipelineconfig.Config) (*contracts.RunResult, error)
}

// ConfigLoader returns the configuration for the next run
type ConfigLoader func() (*pipelineconfig.Config, error)

// PipelineJob refreshes the snapshot on every trigger
// ⭐ SSOT: 스냅샷 갱신 스케줄은 이 Job에서만
type PipelineJob struct {
	runner   Runner
	load     ConfigLoader
	schedule string
	logger   *logger.Logger
}

// NewPipelineJob creates a pipeline job. The config is reloaded on every
// trigger so edits to the YAML file apply from the next run.
func NewPipelineJob(runner Runner, load ConfigLoader, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		runner:   runner,
		load:     load,
		schedule: schedule,
		logger:   log.WithField("job", "pipeline"),
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "pipeline"
}

// Schedule returns the cron schedule
func (j *PipelineJob) Schedule() string {
	return j.schedule
}

// Run loads the config and runs the pipeline once
func (j *PipelineJob) Run(ctx context.Context) error {
	cfg, err := j.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	result, err := j.runner.Run(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if result.Skipped {
		j.logger.WithField("run_id", result.RunID).Warn("Run skipped: no symbol fetched, previous snapshot kept")
		return nil
	}

	counts := result.StatusCounts()
	j.logger.WithFields(map[string]interface{}{
		"run_id":          result.RunID,
		"ok":              counts[contracts.StatusOK],
		"fallback_used":   counts[contracts.StatusFallbackUsed],
		"failed":          counts[contracts.StatusFailed],
		"recommendations": len(result.Recommendations),
	}).Info("Snapshot refreshed")

	return nil
}
