package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/scholaris/scholaris-access/internal/app"
	"github.com/scholaris/scholaris-access/internal/bulk"
	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/observability"
	"github.com/scholaris/scholaris-access/internal/permset"
	"github.com/scholaris/scholaris-access/internal/platform/cache"
	"github.com/scholaris/scholaris-access/internal/platform/db"
	"github.com/scholaris/scholaris-access/internal/resolver"
	"github.com/scholaris/scholaris-access/internal/shared"
	"github.com/scholaris/scholaris-access/internal/tenancy"
	"github.com/scholaris/scholaris-access/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool, logger)
	resolverCache := resolver.NewCache(redisClient, cfg.ResolverCacheTTL)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, resolverCache, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	permsetRepo := permset.NewRepository(pool)
	permsetService := permset.NewService(permsetRepo, auditLogger)
	permsetHandler := permset.NewHandler(logger, permsetService)

	grantsRepo := grants.NewRepository(pool)
	grantsService := grants.NewService(grantsRepo, auditLogger, resolverCache, logger)

	tenancyRepo := tenancy.NewRepository(pool)
	tenancyService := tenancy.NewService(tenancyRepo, auditLogger, cfg.BulkConcurrency)
	tenancyHandler := tenancy.NewHandler(logger, tenancyService)

	resolverService := resolver.NewService(catalogService, grantsService, tenancyService, resolverCache, metrics)
	resolverHandler := resolver.NewHandler(logger, resolverService, grantsService)
	guard := resolver.Middleware{Service: resolverService, Logger: logger}

	bulkService := bulk.NewService(grantsService, permsetService, cfg.BulkConcurrency, logger)
	bulkHandler := bulk.NewHandler(logger, bulkService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		PermSetHandler:  permsetHandler,
		ResolverHandler: resolverHandler,
		TenancyHandler:  tenancyHandler,
		BulkHandler:     bulkHandler,
		JobHandler:      jobHandler,
		Guard:           guard,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
