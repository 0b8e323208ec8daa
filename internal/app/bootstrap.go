package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/revrec/internal/jobs"
	"github.com/odyssey-erp/revrec/internal/observability"
	"github.com/odyssey-erp/revrec/internal/platform/cache"
	"github.com/odyssey-erp/revrec/internal/platform/db"
	"github.com/odyssey-erp/revrec/internal/platform/lock"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
	fsstore "github.com/odyssey-erp/revrec/internal/revrec/store/firestore"
	pgstore "github.com/odyssey-erp/revrec/internal/revrec/store/postgres"
)

// Runtime holds the wired engine and the clients it depends on.
type Runtime struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// RunMetrics is registered on Metrics and shared by the engine and jobs.
	RunMetrics *jobmetrics.Metrics
	Service    *engine.Service
	Pool       *pgxpool.Pool
	Firestore  *firestore.Client
	Redis      *redis.Client
	Checks     map[string]HealthCheck

	closers []func()
}

// Bootstrap opens the configured store and lock backend and builds the
// engine service. Callers must Close the runtime.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics, Checks: map[string]HealthCheck{}}

	accounts, err := revrec.LoadTaxonomy(cfg.AccountTaxonomyFile)
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}

	repo, audit, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var locker engine.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		rt.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		locker = lock.NewRedis(client, cfg.LockTTL)
	} else {
		logger.Warn("REDIS_ADDR empty, recognition locks are process-local")
	}

	svc := engine.NewService(repo, locker, accounts, engine.Options{
		VariableThreshold: threshold,
		FinancingMethod:   revrec.FinancingMethod(cfg.FinancingMethod),
		AutoPost:          cfg.AutoPost,
		DefaultCurrency:   cfg.DefaultCurrency,
	})
	svc.WithLogger(logger)
	if metrics != nil {
		rt.RunMetrics = jobmetrics.NewMetrics(metrics.Registerer())
	} else {
		rt.RunMetrics = jobmetrics.NewMetrics(nil)
	}
	svc.WithMetrics(rt.RunMetrics)
	svc.WithAudit(audit)
	rt.Service = svc

	logger.Info("revrec runtime ready",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("redis_lock", rt.Redis != nil),
		slog.Bool("auto_post", cfg.AutoPost),
		slog.String("financing_method", cfg.FinancingMethod))
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (engine.Repository, engine.AuditPort, error) {
	cfg := rt.Config
	switch cfg.StoreDriver {
	case StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("app: firestore client: %w", err)
		}
		rt.Firestore = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		return fsstore.NewRepository(client), fsstore.NewAuditLogger(client), nil
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
			MaxConns:        cfg.PGMaxConns,
			MaxConnIdleTime: cfg.PGMaxConnIdle,
			ApplicationName: "revrec",
		})
		if err != nil {
			return nil, nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		rt.Checks["postgres"] = pool.Ping
		if cfg.AutoMigrate {
			if _, err := db.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, rt.Logger); err != nil {
				return nil, nil, err
			}
		}
		return pgstore.NewRepository(pool), pgstore.NewAuditLogger(pool), nil
	}
}

// Close releases clients in reverse order of acquisition.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// StartTracing installs the tracer provider for service. The returned stop
// flushes pending spans and must run before exit.
func StartTracing(ctx context.Context, cfg *Config, service string, logger *slog.Logger) (func(), error) {
	shutdown, err := observability.SetupTracing(ctx, cfg.Tracing(service))
	if err != nil {
		return nil, err
	}
	if cfg.TracingEnabled {
		logger.Info("tracing enabled",
			slog.String("protocol", cfg.TracingProtocol),
			slog.String("endpoint", cfg.TracingEndpoint),
			slog.Float64("sampling_ratio", cfg.TracingSampling))
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}, nil
}
