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

	"github.com/odyssey-erp/revrec/internal/app"
	"github.com/odyssey-erp/revrec/internal/observability"
	revrechttp "github.com/odyssey-erp/revrec/internal/revrec/http"
	"github.com/odyssey-erp/revrec/jobs"
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
	metrics := observability.NewMetrics()
	stopTracing, err := app.StartTracing(ctx, cfg, "revrec-api", logger)
	if err != nil {
		logger.Error("tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer stopTracing()

	rt, err := app.Bootstrap(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	var jobHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			logger.Error("redis options", slog.Any("error", err))
			os.Exit(1)
		}
		inspector := asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		RevrecHandler: revrechttp.NewHandler(logger, rt.Service),
		JobHandler:    jobHandler,
		Metrics:       metrics,
		Checks:        rt.Checks,
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
