package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-retail/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-retail/internal/app"
	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	"github.com/odyssey-erp/odyssey-retail/internal/observability"
	"github.com/odyssey-erp/odyssey-retail/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-retail/internal/platform/db"
	"github.com/odyssey-erp/odyssey-retail/internal/purchases"
	"github.com/odyssey-erp/odyssey-retail/internal/sales"
	"github.com/odyssey-erp/odyssey-retail/jobs"
	"github.com/odyssey-erp/odyssey-retail/migrations"
)

const usage = `usage: odyssey [command]

commands:
  serve                      run the HTTP API (default)
  migrate                    apply pending SQL migrations
  low-stock [-limit N] [-json]
                             print products at or under minimum stock
  jobs trigger <task>        enqueue a background task by name
  jobs stats                 show default queue counters
  jobs scheduled             list scheduled tasks
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "low-stock":
		code = lowStock(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	catalogCache := catalog.NewCache(redisClient, cfg.CacheTTL, logger)
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), catalogCache, logger)

	var alerter sales.Alerter
	var jobHandler *jobs.Handler
	if cfg.JobsEnabled {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient := jobs.NewClient(redisOpts, metrics)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		alerter = jobClient

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	purchaseService := purchases.NewService(purchases.NewRepository(dbpool), catalogService, metrics, logger)
	salesService := sales.NewService(
		sales.NewRepository(dbpool),
		sales.ServiceConfig{EnforceCatalogPrice: cfg.SalesEnforceCatalogPrice},
		catalogService,
		metrics,
		alerter,
		logger,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalog.NewHandler(logger, catalogService),
		PurchaseHandler: purchases.NewHandler(logger, purchaseService),
		SalesHandler:    sales.NewHandler(logger, salesService),
		JobHandler:      jobHandler,
		Metrics:         metrics,
		Database:        dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: 1})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.FS)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrations applied", slog.Any("files", applied))
	return 0
}

func lowStock(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("low-stock", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "maximum products to list")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	report, err := cli.NewLowStockCLI(catalogReader(pool, logger))
	if err != nil {
		logger.Error("init low stock report", slog.Any("error", err))
		return 1
	}
	return report.ReportCommand(ctx, cli.LowStockOptions{Limit: *limit, JSONOutput: *asJSON})
}

func catalogReader(pool *pgxpool.Pool, logger *slog.Logger) *catalog.Service {
	return catalog.NewService(catalog.NewRepository(pool), nil, logger)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	ops := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer ops.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := ops.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d paused=%t\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Paused)
	case "scheduled":
		tasks, err := ops.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
