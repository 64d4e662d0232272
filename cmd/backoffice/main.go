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
	"github.com/age-b2b/backoffice/internal/audit"
	"github.com/age-b2b/backoffice/internal/cart"
	"github.com/age-b2b/backoffice/internal/catalog"
	"github.com/age-b2b/backoffice/internal/clients"
	"github.com/age-b2b/backoffice/internal/inventory"
	"github.com/age-b2b/backoffice/internal/notify"
	"github.com/age-b2b/backoffice/internal/observability"
	"github.com/age-b2b/backoffice/internal/orders"
	"github.com/age-b2b/backoffice/internal/platform/cache"
	"github.com/age-b2b/backoffice/internal/platform/db"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/reporting"
	"github.com/age-b2b/backoffice/internal/shared"
	"github.com/age-b2b/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

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
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	queueClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	sessions := shared.NewSessionStore(redisClient, cfg.SessionPrefix, cfg.SessionTTL)
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	products := catalog.NewRepository(pool)
	clientRepo := clients.NewRepository(pool)

	reportingService := reporting.NewService(
		reporting.NewRepository(pool),
		reporting.NewCache(redisClient, cfg.DashboardCacheTTL),
		nil,
		logger,
	)
	notifier := notify.Fanout{
		notify.NewPublisher(queueClient, logger, metrics.Jobs()),
		reportingService,
	}

	inventoryService := inventory.NewService(inventory.NewRepository(pool), products, auditLogger, notifier, inventory.ServiceConfig{
		Location: cfg.Location(),
		Logger:   logger,
		Metrics:  metrics,
	})
	orderService := orders.NewService(orders.NewRepository(pool), products, clientRepo, inventoryService.Allocator(), orders.ServiceConfig{
		Audit:    auditLogger,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
	})
	cartService := cart.NewService(cart.NewRepository(pool), products, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RBAC:             rbac.Middleware{Sessions: sessions, Logger: logger},
		OrdersHandler:    orders.NewHandler(logger, orderService, idempotency),
		CartHandler:      cart.NewHandler(logger, cartService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		ReportingHandler: reporting.NewHandler(logger, reportingService),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool), nil, cfg.Location())),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		AccessLog:        !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
