package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "파이프라인 실행",
	Long: `Runs the pipeline.

With --once (or when schedule.enabled is false) the pipeline runs a single
time and exits; otherwise it behaves like "scheduler start".

A run resolves the universe, fetches prices with failover, computes
indicators, ranks symbols, writes one batch to the store and publishes the
JSON snapshot. When every symbol fails to fetch, nothing is written and the
previous snapshot stays in place.

Example:
  go run ./cmd/quant run --once
  go run ./cmd/quant run --once --config config.yaml --export-json docs/data/latest.json`,
	RunE: runPipeline,
}

var (
	runOnce       bool
	runExportJSON string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run once immediately and exit")
	runCmd.Flags().StringVar(&runExportJSON, "export-json", "", "override export.path")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if runExportJSON != "" {
		a.pipeline.Export.Path = runExportJSON
	}

	if !runOnce && a.pipeline.Schedule.Enabled {
		return serveScheduler(ctx, a, runExportJSON)
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	PrintRunHeader(a.pipeline, a.env.PipelineConfigPath)
	result, err := orch.Run(ctx, a.pipeline)
	if result != nil {
		PrintRunSummary(result, a.pipeline.Export.Path)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
