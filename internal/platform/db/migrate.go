package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found in dir of fsys.
// It returns the version the schema ends at.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, logger *slog.Logger) (int64, error) {
	provider, closeDB, err := newProvider(pool, fsys, dir)
	if err != nil {
		return 0, err
	}
	defer closeDB()

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("platform/db: migrate up: %w", err)
	}
	if logger != nil {
		for _, res := range results {
			logger.Info("migration applied",
				slog.Int64("version", res.Source.Version),
				slog.Duration("duration", res.Duration))
		}
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("platform/db: migration version: %w", err)
	}
	return version, nil
}

// MigrationStatus reports the current schema version and whether migrations are pending.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string) (int64, bool, error) {
	provider, closeDB, err := newProvider(pool, fsys, dir)
	if err != nil {
		return 0, false, err
	}
	defer closeDB()

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("platform/db: migration version: %w", err)
	}
	pending, err := provider.HasPending(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("platform/db: migration pending: %w", err)
	}
	return version, pending, nil
}

func newProvider(pool *pgxpool.Pool, fsys fs.FS, dir string) (*goose.Provider, func(), error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/db: migrations dir: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, sub)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("platform/db: goose provider: %w", err)
	}
	return provider, func() { _ = sqlDB.Close() }, nil
}
