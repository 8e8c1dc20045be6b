package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsnap/internal/api"
	"github.com/wonny/quantsnap/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "스냅샷 API 서버 시작",
	Long: `Starts a read-only HTTP server over the store.

Endpoints:
  GET  /health                - Health check
  GET  /api/snapshot/latest   - Latest snapshot (same schema as the exported JSON)
  GET  /api/runs/latest       - Latest run with indicators and statuses
  GET  /api/runs?limit=20     - Recent runs
  GET  /metrics               - Prometheus metrics

With --with-scheduler the pipeline also runs on schedule in this process,
so /metrics reflects those runs, and the job endpoints are added:
  GET  /api/jobs                - Jobs with run stats and next fire time
  GET  /api/jobs/{name}/history - Latest results of a job
  POST /api/jobs/{name}/run     - Start a job now

Example:
  go run ./cmd/quant serve
  go run ./cmd/quant serve --port 9090 --with-scheduler`,
	RunE: runServe,
}

var (
	servePort          string
	serveWithScheduler bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default $PORT)")
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "also run the pipeline on schedule")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.env.Port = servePort
	}

	var jobsHandler *handlers.JobsHandler
	if serveWithScheduler {
		sched, err := newScheduler(a, "")
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer func() {
			sched.Stop()
			printJobStats(sched.GetJobStats())
		}()
		jobsHandler = handlers.NewJobsHandler(sched, a.logger)
	}

	router := api.NewRouter(handlers.NewSnapshotHandler(a.store, a.logger), jobsHandler, a.metrics.Handler(), a.logger)
	server := api.New(a.env, a.logger, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Listening on :%s (Ctrl+C to stop)\n", a.env.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
