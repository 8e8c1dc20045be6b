package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "최근 실행 상태 조회",
	Long: `Prints the latest persisted run and a list of recent runs.

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --limit 5`,
	RunE: runStatus,
}

var statusLimit int

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of recent runs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	latest, err := a.store.ReadLatest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Println("No run has been persisted yet. Try: go run ./cmd/quant run --once")
		return nil
	}
	PrintRunSummary(latest, a.pipeline.Export.Path)

	runs, err := a.store.RecentRuns(ctx, statusLimit)
	if err != nil {
		return err
	}
	PrintRecentRuns(runs)
	return nil
}
