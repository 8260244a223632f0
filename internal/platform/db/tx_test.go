package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeBeginner struct {
	begins int
	opts   pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	b.opts = opts
	return fakeTx{}, nil
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	beginner := &fakeBeginner{}
	attempts := 0
	err := WithTx(context.Background(), beginner, func(pgx.Tx) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 3, beginner.begins)
	require.Equal(t, pgx.RepeatableRead, beginner.opts.IsoLevel)
}

func TestWithTxDoesNotRetryDomainErrors(t *testing.T) {
	beginner := &fakeBeginner{}
	sentinel := errors.New("insufficient stock")
	attempts := 0
	err := WithTx(context.Background(), beginner, func(pgx.Tx) error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}

func TestWithTxGivesUpAfterBoundedAttempts(t *testing.T) {
	beginner := &fakeBeginner{}
	attempts := 0
	err := WithTx(context.Background(), beginner, func(pgx.Tx) error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, txAttempts, attempts)
}
