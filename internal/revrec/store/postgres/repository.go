// Package postgres persists the revenue-recognition model in PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/platform/db"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
)

// Migrations holds the goose migrations for the schema used by Repository.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

const uniqueViolation = "23505"

// Repository persists recognition entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

var _ engine.TxRepository = (*txRepository)(nil)

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, engine.TxRepository) error) error {
	if r == nil || r.pool == nil {
		return revrec.ExternalIO("begin", errors.New("postgres repository not initialised"))
	}
	var fnErr error
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		fnErr = fn(ctx, &txRepository{tx: tx})
		return fnErr
	})
	if err != nil && (fnErr == nil || db.Retryable(err)) && !errors.Is(err, revrec.ErrExternalIO) {
		return revrec.ExternalIO("transaction", err)
	}
	return err
}

// wrap classifies driver failures for the engine.
func wrap(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", revrec.ErrNotFound, kind, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return revrec.Invalid(kind, "duplicate %s (%s)", id, pgErr.ConstraintName)
	}
	return revrec.ExternalIO(op, err)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
