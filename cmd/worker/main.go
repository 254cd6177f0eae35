package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/amenagements/internal/app"
	"github.com/dharsanguruparan/amenagements/internal/config"
	"github.com/dharsanguruparan/amenagements/internal/database"
	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", logging.Err(err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	adapters, err := app.Open(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer adapters.Close()
	if err := database.EnsureSchema(ctx, adapters.Pool()); err != nil {
		return err
	}

	redisOpt := app.RedisOpt(cfg)
	client := asynq.NewClient(redisOpt)
	defer client.Close()
	router := worker.NewRouter(logger, m)
	app.Register(router, queue.NewBus(client), adapters.Deps)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logging.AsynqLogger{Logger: logger},
		Location: time.UTC,
	})
	sweep, err := queue.NewTask(queue.Reconciliation{})
	if err != nil {
		return err
	}
	if _, err := scheduler.Register("@every "+cfg.ReconcileEvery.String(), sweep,
		asynq.Queue(queue.QueueFor(queue.ReconciliationTask)), asynq.MaxRetry(0)); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Shutdown()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	defer metricsSrv.Close()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Queues:      queue.Weights,
		Logger:      logging.AsynqLogger{Logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.WarnContext(ctx, "task failed", slog.String("task", task.Type()),
				slog.Int("retried", retried), slog.Int("max_retry", maxRetry), logging.Err(err))
		}),
	})
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	logger.Info("worker started", slog.Any("queues", queue.Weights), slog.Int("concurrency", cfg.ProcessingPool))
	return server.Run(router.Handler())
}
