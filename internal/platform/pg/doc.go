// Package pg opens PostgreSQL connection pools with pgx.
//
// The pool is normally exposed to the rest of the application as a
// *sql.DB through pgx's stdlib adapter, so the same transaction and query
// code serves both SQLite and PostgreSQL.
package pg
