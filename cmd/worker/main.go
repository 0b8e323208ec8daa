package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/revrec/internal/app"
	"github.com/odyssey-erp/revrec/jobs"
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
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	stopTracing, err := app.StartTracing(ctx, cfg, "revrec-worker", logger)
	if err != nil {
		logger.Error("tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer stopTracing()

	rt, err := app.Bootstrap(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	worker, err := newWorker(cfg, logger, jobs.NewRecognitionJob(rt.Service, cfg.BatchTenants, logger, rt.RunMetrics))
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newWorker(cfg *app.Config, logger *slog.Logger, job *jobs.RecognitionJob) (*jobs.Worker, error) {
	var cron []jobs.CronRegistration
	if cfg.BatchCron != "" {
		task, err := jobs.NewRecognitionBatchTask(jobs.AllTenants)
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.BatchCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if cfg.PostPendingCron != "" {
		task, err := jobs.NewPostPendingTask(jobs.AllTenants)
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.PostPendingCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if len(cron) > 0 && len(cfg.BatchTenants) == 0 {
		logger.Warn("BATCH_TENANTS empty, scheduled jobs will be skipped")
	}

	redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpt,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecognitionBatch, Handler: job.HandleBatch},
			{Type: jobs.TaskPostPending, Handler: job.HandlePostPending},
		},
		Cron: cron,
	})
}
