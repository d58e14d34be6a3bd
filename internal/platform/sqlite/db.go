package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath is the SQLite path of a private in-memory database.
const MemoryPath = ":memory:"

// Options holds pool and pragma settings for a SQLite database.
type Options struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout bounds the connectivity check performed by Open.
	PingTimeout time.Duration
	WALMode     bool
	ForeignKeys bool
	// BusyTimeout is how long a connection waits on a locked database
	// before returning SQLITE_BUSY.
	BusyTimeout time.Duration
	ReadOnly    bool
}

// DefaultOptions returns settings for an embedded, file-backed database.
func DefaultOptions() Options {
	return Options{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4, // one writer at a time anyway
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
	}
}

// MemoryOptions returns settings for an in-memory database: a single
// connection with no lifetime limit, since closing the last connection
// drops the database.
func MemoryOptions() Options {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	return opts
}

// Open opens the database at path and verifies the connection. Parent
// directories of a file-backed database are created as needed.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}

// MemoryDB is a named in-memory database. A pinned anchor connection keeps
// the database alive when the pool discards a connection, which
// database/sql does when a transaction is rolled back by a cancelled
// context.
type MemoryDB struct {
	DB     *sql.DB
	anchor *sql.Conn
}

// OpenInMemory opens a new, uniquely named in-memory database.
func OpenInMemory(ctx context.Context) (*MemoryDB, error) {
	opts := MemoryOptions()
	// one anchor plus one working connection
	opts.MaxOpenConns = 2
	opts.MaxIdleConns = 1

	path := "file:verily-" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := Open(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	anchor, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pin in-memory database: %w", err)
	}
	return &MemoryDB{DB: db, anchor: anchor}, nil
}

// Close releases the anchor and closes the pool, dropping the database.
func (m *MemoryDB) Close() error {
	anchorErr := m.anchor.Close()
	return errors.Join(anchorErr, m.DB.Close())
}

// buildDSN renders path plus the modernc _pragma parameters for opts.
func buildDSN(path string, opts Options) string {
	params := url.Values{}
	if opts.ReadOnly {
		params.Set("mode", "ro")
	}

	var pragmas []string
	if opts.ForeignKeys {
		pragmas = append(pragmas, "foreign_keys(1)")
	}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.WALMode {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}

	if len(params) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

// IsMemory reports whether dsn names an in-memory database.
func IsMemory(dsn string) bool {
	return PathFromDSN(dsn) == MemoryPath
}

// PathFromDSN strips the "sqlite://" or "sqlite:" scheme from dsn. Plain
// paths are returned unchanged.
func PathFromDSN(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		return strings.TrimPrefix(dsn, "sqlite:")
	}
	return dsn
}

// IsBusy reports whether err means the database or a table was locked by
// another connection. Such failures are safe to retry.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
