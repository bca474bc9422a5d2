package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/permsets"
	"github.com/stewardhq/steward/internal/platform/db"
	"github.com/stewardhq/steward/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	permsetsRepo := permsets.NewRepository(pool)
	permsetsService := permsets.NewService(permsetsRepo)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileTableCounts, Handler: jobs.NewReconcileTableCountsHandler(permsetsService, logger)},
			{Type: jobs.TaskSweepOrphanGrants, Handler: jobs.NewSweepOrphanGrantsHandler(permsetsService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewReconcileTableCountsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewSweepOrphanGrantsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); !jobs.IsShutdown(err) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
