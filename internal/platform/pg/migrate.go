package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// MigrationDriver checks out one connection from db for golang-migrate.
// The returned close function releases that connection and leaves db
// open; the driver's own Close must not be called.
func MigrationDriver(ctx context.Context, db *sql.DB) (database.Driver, func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire migration connection: %w", err)
	}

	drv, err := migratepgx.WithConnection(ctx, conn, &migratepgx.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("create pgx migration driver: %w", err)
	}
	return drv, conn.Close, nil
}
