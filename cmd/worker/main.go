package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/holdco/internal/app"
	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/observability"
	"github.com/odyssey-erp/holdco/internal/platform/cache"
	"github.com/odyssey-erp/holdco/internal/platform/db"
	"github.com/odyssey-erp/holdco/internal/platform/storage"
	"github.com/odyssey-erp/holdco/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(cfg, pool, redisClient, metrics, logger)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskCloseMonth, Handler: jobs.NewCloseMonthJob(services.MonthClose, logger, jobMetrics).Handle},
		{Type: jobs.TaskPostPeriod, Handler: jobs.NewPostPeriodJob(services.Poster, logger, jobMetrics).Handle},
		{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupJob(services.Idempotency, cfg.IdempotencyTTL, logger, jobMetrics).Handle},
	}
	schedule := jobs.ScheduleConfig{
		IdempotencyCleanupCron: cfg.IdempotencyCleanupCron,
		IdempotencyTTL:         cfg.IdempotencyTTL,
	}
	if cfg.ExportsEnabled() {
		store, err := storage.NewS3Store(ctx, cfg.Storage())
		if err != nil {
			logger.Error("init export storage", slog.Any("error", err))
			os.Exit(1)
		}
		exportJob := jobs.NewExportPeriodJob(services.Exports, store, services.Directory, logger, jobMetrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskExportPeriod, Handler: exportJob.Handle})
		schedule.ExportCron = cfg.ExportCron
	} else {
		logger.Info("EXPORT_BUCKET not set, export uploads disabled")
	}

	cron, err := jobs.Schedule(schedule)
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
