// Package store holds the repositories for accounts. Every method runs on
// the transaction carried by ctx when there is one, so callers compose
// repository calls with database.Handle.WithinTx.
package store
