package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/app"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/cache"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/platform/db"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/recon"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/jobs"
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

	metrics := jobs.NewMetrics(nil)
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{
				Type:    jobs.TaskTypeCatalogReconcile,
				Handler: jobs.NewCatalogReconcileHandler(engine, metrics, logger),
			},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
