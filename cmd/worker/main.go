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

	"github.com/age-b2b/backoffice/internal/app"
	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/notify"
	"github.com/age-b2b/backoffice/internal/observability"
	"github.com/age-b2b/backoffice/internal/platform/cache"
	"github.com/age-b2b/backoffice/internal/platform/db"
	"github.com/age-b2b/backoffice/internal/reporting"
	"github.com/age-b2b/backoffice/internal/shared"
	"github.com/age-b2b/backoffice/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, metrics, logger)
	}

	reportingService := reporting.NewService(
		reporting.NewRepository(pool),
		reporting.NewCache(redisClient, cfg.DashboardCacheTTL),
		nil,
		logger,
	)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), catalog.NewRepository(pool), shared.NewAuditLogger(pool), nil, inventory.ServiceConfig{
		Location: cfg.Location(),
		Logger:   logger,
		Metrics:  metrics,
	})

	notifications := notify.NewHandler(notify.HandlerConfig{
		Clients:  clients.NewRepository(pool),
		OpsEmail: cfg.NotifyOpsEmail,
		Language: cfg.Language(),
		Currency: cfg.NotifyCurrency,
		Location: cfg.Location(),
		Logger:   logger,
	})
	regradeJob := jobs.NewLotRegradeJob(inventoryService, reportingService, logger, metrics.Jobs())
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Keys:    shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: metrics.Jobs(),
	}

	regradeTask, err := jobs.NewLotRegradeTask(time.Time{})
	if err != nil {
		logger.Error("build regrade task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskOrderStatus, Handler: notifications.HandleOrderStatus},
			{Type: notify.TaskInboundRegistered, Handler: notifications.HandleInboundRegistered},
			{Type: jobs.TaskLotRegrade, Handler: regradeJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RegradeCron, Task: regradeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("timezone", cfg.BusinessTimezone))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, metrics *observability.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("worker metrics server", slog.Any("error", err))
	}
}
