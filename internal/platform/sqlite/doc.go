// Package sqlite opens SQLite databases through the pure-Go modernc driver.
//
// Connection settings are applied as per-connection pragmas in the DSN, so
// every connection in the pool gets the same foreign key, journal and busy
// timeout settings:
//
//	db, err := sqlite.Open(ctx, "data/verily.db", sqlite.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
// In-memory databases are named shared-cache databases pinned by an anchor
// connection, so the pool may replace its working connection without
// losing data:
//
//	mem, err := sqlite.OpenInMemory(ctx)
//	...
//	defer mem.Close()
//
// DSNs accepted by the database handle ("sqlite::memory:",
// "sqlite://data/verily.db", "data/verily.db") are normalised with
// PathFromDSN and IsMemory.
//
// Schema migrations run through golang-migrate; MigrationDriver wraps an
// open *sql.DB without taking ownership of it.
package sqlite
