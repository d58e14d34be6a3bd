package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ifiokjr/verily/internal/platform/pg"
	"github.com/ifiokjr/verily/internal/platform/sqlite"
	"github.com/ifiokjr/verily/internal/shared"
)

// Dialect names the SQL backend behind a Handle.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var errNotOpen = errors.New("database handle is not open")

// MemoryDSN opens a fresh in-memory SQLite database.
const MemoryDSN = "sqlite::memory:"

// Handle is a shared reference to a connection pool. The zero Handle is
// not usable; obtain one from TryNew, SetupMemory or FromContext.
type Handle struct {
	db      *sql.DB
	dialect Dialect
	close   func() error
}

// TryNew opens the pool described by dsn. postgres:// and postgresql://
// URLs use pgx; anything else is a SQLite path, with "sqlite::memory:" and
// ":memory:" selecting a fresh in-memory database.
func TryNew(ctx context.Context, dsn string) (Handle, error) {
	if dsn == "" {
		return Handle{}, shared.DbConnectionError(errors.New("empty database url"))
	}

	if pg.IsDSN(dsn) {
		pool, err := pg.NewPool(ctx, dsn)
		if err != nil {
			return Handle{}, shared.DbConnectionError(err)
		}
		db := stdlib.OpenDBFromPool(pool)
		return Handle{db: db, dialect: DialectPostgres, close: sync.OnceValue(closePostgres(db, pool))}, nil
	}

	if sqlite.IsMemory(dsn) {
		mem, err := sqlite.OpenInMemory(ctx)
		if err != nil {
			return Handle{}, shared.DbConnectionError(err)
		}
		return Handle{db: mem.DB, dialect: DialectSQLite, close: sync.OnceValue(mem.Close)}, nil
	}

	db, err := sqlite.Open(ctx, sqlite.PathFromDSN(dsn), sqlite.DefaultOptions())
	if err != nil {
		return Handle{}, shared.DbConnectionError(err)
	}
	return Handle{db: db, dialect: DialectSQLite, close: sync.OnceValue(db.Close)}, nil
}

func closePostgres(db *sql.DB, pool *pgxpool.Pool) func() error {
	return func() error {
		err := db.Close()
		pool.Close()
		return err
	}
}

// FromDB wraps an already open pool. Closing the handle closes db.
func FromDB(db *sql.DB, dialect Dialect) Handle {
	return Handle{db: db, dialect: dialect, close: sync.OnceValue(db.Close)}
}

// DB returns the underlying pool.
func (h Handle) DB() *sql.DB { return h.db }

// Dialect returns the backend the handle talks to.
func (h Handle) Dialect() Dialect { return h.dialect }

// Valid reports whether h refers to an open pool.
func (h Handle) Valid() bool { return h.db != nil }

// Ping verifies that a connection can be established.
func (h Handle) Ping(ctx context.Context) error {
	if h.db == nil {
		return shared.DbConnectionError(errNotOpen)
	}
	if err := h.db.PingContext(ctx); err != nil {
		return shared.DbConnectionError(err)
	}
	return nil
}

// Stats returns pool statistics.
func (h Handle) Stats() sql.DBStats {
	if h.db == nil {
		return sql.DBStats{}
	}
	return h.db.Stats()
}

// Close closes the pool. Every copy of h becomes unusable; closing again
// returns the first result.
func (h Handle) Close() error {
	if h.close == nil {
		return nil
	}
	if err := h.close(); err != nil {
		return shared.DbConnectionError(err)
	}
	return nil
}

type handleKey struct{}

// WithHandle returns a copy of ctx that carries h.
func WithHandle(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// FromContext returns the handle published with WithHandle, or
// shared.ErrDbMissingContext when there is none.
func FromContext(ctx context.Context) (Handle, error) {
	h, ok := ctx.Value(handleKey{}).(Handle)
	if !ok || !h.Valid() {
		return Handle{}, shared.ErrDbMissingContext
	}
	return h, nil
}
