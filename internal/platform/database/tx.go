package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ifiokjr/verily/internal/platform/sqlite"
	"github.com/ifiokjr/verily/internal/shared"
	"github.com/ifiokjr/verily/pkg/retry"
)

// Querier is the query surface shared by the pool and a transaction, so
// repositories work the same inside and outside WithinTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*Tx)(nil)
)

// Tx is a transaction opened by Transaction. It must be used by a single
// goroutine and finished with Commit or Rollback. If the context passed to
// Transaction is cancelled first, the driver rolls the transaction back
// and Commit fails.
type Tx struct {
	tx         *sql.Tx
	done       bool
	savepoints int
}

// Transaction begins a transaction bound to ctx.
func (h Handle) Transaction(ctx context.Context) (*Tx, error) {
	if h.db == nil {
		return nil, shared.DbConnectionError(errNotOpen)
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Classify(err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return Classify(err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit, after a
// previous Rollback, or after the driver already rolled back because the
// context was cancelled.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return Classify(err)
	}
	return nil
}

// ExecContext runs a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return rows, nil
}

// QueryRowContext runs a single-row query inside the transaction. Errors
// surface from Scan; pass them through Classify.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

type txKey struct{}

// TxFromContext returns the transaction opened by an enclosing WithinTx.
func TxFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// Querier returns the transaction active in ctx, or the pool.
func (h Handle) Querier(ctx context.Context) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return h.db
}

// busyRetry bounds retries of SQLite transactions that hit a lock.
var busyRetry = retry.Config{
	MaxAttempts:    3,
	InitialDelay:   10 * time.Millisecond,
	MaxDelay:       500 * time.Millisecond,
	Multiplier:     2,
	JitterStrategy: retry.JitterNone,
}

// WithinTx runs fn in a transaction: it commits when fn returns nil and
// rolls back when fn returns an error or panics. Inside fn, Querier(ctx)
// returns the transaction. A nested WithinTx runs in a savepoint of the
// outer transaction. SQLite transactions that fail on a locked database
// are retried a few times, so fn must not have side effects outside the
// transaction.
func (h Handle) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.withinSavepoint(ctx, fn)
	}
	if h.dialect != DialectSQLite {
		return h.runTx(ctx, fn)
	}

	var last error
	err := retry.DoWithRetryable(ctx, busyRetry, func(ctx context.Context) error {
		last = h.runTx(ctx, fn)
		return last
	}, sqlite.IsBusy)

	var exceeded *retry.RetriesExceededError
	if errors.As(err, &exceeded) {
		return last
	}
	return err
}

func (h Handle) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := h.Transaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (t *Tx) withinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)

	if _, err := t.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}

	rollback := func() error {
		if _, err := t.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return err
		}
		_, err := t.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	_, err := t.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}
