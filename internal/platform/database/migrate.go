package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ifiokjr/verily/internal/platform/pg"
	"github.com/ifiokjr/verily/internal/platform/sqlite"
	"github.com/ifiokjr/verily/internal/shared"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrations returns the embedded schema, one directory per dialect
// ("migrations/sqlite", "migrations/postgres").
func Migrations() fs.FS { return migrationsFS }

// MigrationInfo reports the outcome of Migrate.
type MigrationInfo struct {
	Applied        bool
	CurrentVersion uint
	FinalVersion   uint
	Dirty          bool
}

// Migrate applies every pending up migration found in dir of fsys. It is
// safe to call repeatedly. The handle stays open afterwards. Failures are
// storage errors of kind migration.
func Migrate(ctx context.Context, h Handle, fsys fs.FS, dir string) (MigrationInfo, error) {
	info, err := migrateUp(ctx, h, fsys, dir)
	if err != nil {
		return info, shared.DbMigrationError(err)
	}
	return info, nil
}

// MigrateEmbedded applies the embedded migrations for h's dialect.
func MigrateEmbedded(ctx context.Context, h Handle) (MigrationInfo, error) {
	return Migrate(ctx, h, migrationsFS, "migrations/"+string(h.Dialect()))
}

// SetupMemory opens a fresh in-memory SQLite database with the embedded
// schema applied. Each call returns an independent database.
func SetupMemory(ctx context.Context) (Handle, error) {
	h, err := TryNew(ctx, MemoryDSN)
	if err != nil {
		return Handle{}, err
	}
	if _, err := MigrateEmbedded(ctx, h); err != nil {
		_ = h.Close()
		return Handle{}, err
	}
	return h, nil
}

func migrateUp(ctx context.Context, h Handle, fsys fs.FS, dir string) (MigrationInfo, error) {
	if !h.Valid() {
		return MigrationInfo{}, errNotOpen
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("open migration source: %w", err)
	}
	defer src.Close()

	// The migrate instance is never closed: closing its database driver
	// would close the handle's pool.
	var (
		drv     migratedb.Driver
		release = func() error { return nil }
	)
	switch h.Dialect() {
	case DialectSQLite:
		drv, err = sqlite.MigrationDriver(h.DB())
	case DialectPostgres:
		drv, release, err = pg.MigrationDriver(ctx, h.DB())
	default:
		err = fmt.Errorf("unsupported dialect %q", h.Dialect())
	}
	if err != nil {
		return MigrationInfo{}, err
	}
	defer func() { _ = release() }()

	m, err := migrate.NewWithInstance("iofs", src, string(h.Dialect()), drv)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("create migrate instance: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	var info MigrationInfo
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return info, fmt.Errorf("read schema version: %w", err)
	}
	info.CurrentVersion = current
	info.FinalVersion = current
	info.Dirty = dirty
	if dirty {
		return info, fmt.Errorf("database is in dirty state at version %d", current)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("apply migrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return info, err
	}

	info.Applied = true
	if final, _, err := m.Version(); err == nil {
		info.FinalVersion = final
	}
	return info, nil
}
