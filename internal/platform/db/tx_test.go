package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx records commit and rollback calls. Methods not used by WithTx panic
// through the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs []*fakeTx
	err error
}

func (b *fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &fakeBeginner{}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	require.Len(t, b.txs, 1)
	require.True(t, b.txs[0].committed)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, b.txs, 1)
	require.False(t, b.txs[0].committed)
	require.True(t, b.txs[0].rolledBack)
}

func TestWithTxReplaysSerializationFailures(t *testing.T) {
	b := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: serializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, b.txs[2].committed)
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	b := &fakeBeginner{}
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		return &pgconn.PgError{Code: deadlockDetected}
	})
	require.True(t, Retryable(err))
	require.Len(t, b.txs, maxTxAttempts)
}

func TestWithTxBeginFailure(t *testing.T) {
	err := WithTx(context.Background(), &fakeBeginner{err: errors.New("refused")}, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "begin tx")
	require.False(t, Retryable(err))
}
