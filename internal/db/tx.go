package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restaurant-be/internal/logger"

	"go.uber.org/zap"
)

// Querier is the subset of *sql.DB and *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transactor runs a function as one unit of work. Repositories called with
// the context handed to fn share the same *sql.Tx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

type transactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

func NewTransactor(db *sql.DB, opts *sql.TxOptions) Transactor {
	return &transactor{db: db, opts: opts}
}

func (t *transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	log := logger.FromCtx(ctx).With(zap.String("layer", "db"))

	tx, err := t.db.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to rollback transaction", zap.Error(rbErr))
			return
		}
		log.Debug("transaction rolled back")
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	return nil
}

func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Conn returns the ambient transaction when there is one, otherwise the pool.
func Conn(ctx context.Context, pool *sql.DB) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}
