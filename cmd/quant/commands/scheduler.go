package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wonny/quantsnap/internal/pipelineconfig"
	"github.com/wonny/quantsnap/internal/scheduler"
	"github.com/wonny/quantsnap/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `Starts the scheduler or inspects the configured schedule.

Subcommands:
  start   - run the pipeline on schedule.cron in schedule.timezone
  next    - print the next fire times

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler next --count 5`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `Runs the pipeline on every cron trigger until Ctrl+C.

A trigger that fires while the previous run is still going is skipped.
The YAML file is re-read on every trigger.`,
		RunE: runScheduler,
	}

	schedulerNextCmd = &cobra.Command{
		Use:   "next",
		Short: "다음 실행 시각 조회",
		RunE:  showNextRuns,
	}

	nextCount int
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerNextCmd)

	schedulerNextCmd.Flags().IntVar(&nextCount, "count", 5, "number of fire times")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return serveScheduler(ctx, a, "")
}

// newScheduler registers the pipeline job. exportOverride, when set, is
// re-applied to every reloaded config.
func newScheduler(a *app, exportOverride string) (*scheduler.Scheduler, error) {
	s := a.pipeline.Schedule
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}

	orch, err := a.orchestrator()
	if err != nil {
		return nil, err
	}

	path := a.env.PipelineConfigPath
	load := func() (*pipelineconfig.Config, error) {
		cfg, _, err := pipelineconfig.Load(path)
		if err != nil {
			return nil, err
		}
		if exportOverride != "" {
			cfg.Export.Path = exportOverride
		}
		return cfg, nil
	}

	sched := scheduler.New(loc, a.logger)
	if err := sched.AddJob(jobs.NewPipelineJob(orch, load, s.Cron, a.logger)); err != nil {
		return nil, err
	}
	return sched, nil
}

// serveScheduler blocks until ctx is done
func serveScheduler(ctx context.Context, a *app, exportOverride string) error {
	if !a.pipeline.Schedule.Enabled {
		return fmt.Errorf("schedule.enabled is false in %s", a.env.PipelineConfigPath)
	}

	sched, err := newScheduler(a, exportOverride)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("=== quantsnap Scheduler ===")
	fmt.Printf("Cron     : %s (%s)\n", a.pipeline.Schedule.Cron, a.pipeline.Schedule.Timezone)

	sched.Start()
	for name, next := range sched.NextRuns() {
		fmt.Printf("Next run : %s at %s\n", name, next.Format(time.RFC1123))
	}
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	printJobStats(sched.GetJobStats())
	return nil
}

func showNextRuns(cmd *cobra.Command, args []string) error {
	env, _, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, err := loadPipelineConfig(env.PipelineConfigPath)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}
	schedule, err := cron.ParseStandard(cfg.Schedule.Cron)
	if err != nil {
		return fmt.Errorf("schedule cron: %w", err)
	}

	fmt.Printf("Cron: %s (%s), enabled=%t\n", cfg.Schedule.Cron, cfg.Schedule.Timezone, cfg.Schedule.Enabled)
	t := time.Now().In(loc)
	for i := 0; i < nextCount; i++ {
		t = schedule.Next(t)
		fmt.Printf("  %d. %s\n", i+1, t.Format(time.RFC1123))
	}
	return nil
}
