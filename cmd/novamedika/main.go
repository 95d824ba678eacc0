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

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/app"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/observability"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/cache"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/db"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/recon"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	pharmacySvc := pharmacy.NewService(pharmacy.NewRepository(pool))
	locker := shared.NewRunLocker(redisClient, cfg.RunLockTTL)
	auditLogger := shared.NewAuditLogger(pool)

	engine := recon.NewEngine(catalogRepo, pharmacySvc, locker, auditLogger, logger, recon.EngineConfig{
		RunBudget: cfg.RunBudget,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("create queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	reconHandler := recon.NewHandler(logger, engine, queueClient, catalogRepo)
	jobHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		ReconHandler: reconHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
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
