package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// MigrationDriver wraps db for golang-migrate. Closing the returned driver
// closes db, so callers that keep using db must not close it.
func MigrationDriver(db *sql.DB) (database.Driver, error) {
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migration driver: %w", err)
	}
	return drv, nil
}
