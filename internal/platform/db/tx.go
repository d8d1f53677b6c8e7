package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type txState struct {
	tx          pgx.Tx
	afterCommit []func(context.Context)
}

// WithTx executes fn within a RepeatableRead transaction. When ctx already
// carries a transaction, fn joins it and the outermost caller commits.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
	if state, ok := ctx.Value(txKey{}).(*txState); ok && state != nil {
		return fn(ctx, state.tx)
	}
	if pool == nil {
		return fmt.Errorf("platform/db: pool not initialised")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	state := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txKey{}, state)
	if err := fn(txCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	for _, hook := range state.afterCommit {
		hook(ctx)
	}
	return nil
}

// Conn returns the transaction carried by ctx, or the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if state, ok := ctx.Value(txKey{}).(*txState); ok && state != nil {
		return state.tx
	}
	return pool
}

// AfterCommit defers hook until the transaction in ctx commits. Without a
// transaction the hook runs immediately.
func AfterCommit(ctx context.Context, hook func(context.Context)) {
	if hook == nil {
		return
	}
	if state, ok := ctx.Value(txKey{}).(*txState); ok && state != nil {
		state.afterCommit = append(state.afterCommit, hook)
		return
	}
	hook(ctx)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
