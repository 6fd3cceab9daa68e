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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-retail/internal/app"
	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	jobmetrics "github.com/odyssey-erp/odyssey-retail/internal/jobs"
	"github.com/odyssey-erp/odyssey-retail/internal/platform/db"
	"github.com/odyssey-erp/odyssey-retail/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	catalogService := catalog.NewService(catalog.NewRepository(pool), nil, logger)
	alertJob := jobs.NewLowStockAlertJob(logger, metrics)
	scanJob := jobs.NewLowStockScanJob(catalogService, logger, metrics)

	var cron []jobs.CronRegistration
	if cfg.LowStockScanCron != "" {
		scanTask, err := jobs.NewLowStockScanTask(0, time.Time{})
		if err != nil {
			logger.Error("build low stock scan task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LowStockScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockAlert, Handler: alertJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: scanJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}
