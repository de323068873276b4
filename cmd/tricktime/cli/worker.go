package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/tricktime/tricktime/internal/app"
	jobmetrics "github.com/tricktime/tricktime/internal/jobs"
	"github.com/tricktime/tricktime/internal/observability"
	"github.com/tricktime/tricktime/internal/platform/db"
	"github.com/tricktime/tricktime/internal/shared"
	"github.com/tricktime/tricktime/jobs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued welcome emails and maintenance tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunWorker(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// RunWorker loads configuration and runs the queue worker until ctx ends.
func RunWorker(ctx context.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	welcomeJob, err := newWelcomeEmailJob(cfg, logger, jobMetrics)
	if err != nil {
		return err
	}
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		return fmt.Errorf("build cleanup task: %w", err)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendWelcomeEmail, Handler: welcomeJob.Handle},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	metricsServer := serveWorkerMetrics(cfg, logger, metrics)
	defer func() {
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker run: %w", err)
	}
	return nil
}

func serveWorkerMetrics(cfg *app.Config, logger *slog.Logger, metrics *observability.Metrics) *http.Server {
	if cfg.WorkerMetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadTimeout: cfg.AppReadTimeout}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	return server
}
