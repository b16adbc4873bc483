package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

// TxKey is the context key under which the active transaction is stored.
const TxKey contextKey = "db_tx"

// Querier is the subset of pgx used by the repositories. *pgxpool.Pool,
// pgx.Tx and pgxmock pools all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ConnFromContext returns the transaction bound to ctx, or nil when the call
// is not running inside WithTx.
func ConnFromContext(ctx context.Context) Querier {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	if tx == nil {
		return nil
	}
	return tx
}

// ContextWithTx binds tx to ctx so repositories pick it up through
// ConnFromContext.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// TxManager runs a function inside a single database transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgTxManager struct {
	db Beginner
}

// NewTxManager returns a TxManager backed by db.
func NewTxManager(db Beginner) TxManager {
	return &pgTxManager{db: db}
}

// WithTx begins a transaction, runs fn with the transaction in its context and
// commits when fn succeeds. Nested calls join the outer transaction.
func (m *pgTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ConnFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NoopTxManager runs fn directly. Used by tests and in-memory wiring.
type NoopTxManager struct{}

func (NoopTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
