package shared

import (
	"errors"
	"fmt"
)

// DbKind classifies failures that originate in the storage layer.
type DbKind int

const (
	// DbMissingContext means no database handle was published for the request.
	DbMissingContext DbKind = iota
	// DbPasswordHash represents a password hashing or verification failure.
	DbPasswordHash
	// DbEncryption represents a symmetric encryption failure.
	DbEncryption
	// DbKeypair represents a failure to parse or derive a keypair.
	DbKeypair
	// DbStorage represents a generic driver or query failure.
	DbStorage
	// DbConnection represents a failure to open or keep a connection.
	DbConnection
	// DbMigration represents a schema migration failure.
	DbMigration
	// DbTypeMismatch means a column could not be scanned into a Go type.
	DbTypeMismatch
	// DbNotFound means a query returned no rows.
	DbNotFound
	// DbModelNotFound means a record of a named model was not found by id.
	DbModelNotFound
	// DbFile represents a filesystem failure.
	DbFile
	// DbOther represents any other storage failure.
	DbOther
	// DbJSON represents a JSON encoding failure of stored data.
	DbJSON

	dbKindCount
)

var dbDiscriminants = [dbKindCount]string{
	DbMissingContext: "missing_context",
	DbPasswordHash:   "password_hash",
	DbEncryption:     "encryption",
	DbKeypair:        "keypair",
	DbStorage:        "storage",
	DbConnection:     "connection",
	DbMigration:      "migration",
	DbTypeMismatch:   "type_mismatch",
	DbNotFound:       "not_found",
	DbModelNotFound:  "model_not_found",
	DbFile:           "file",
	DbOther:          "other",
	DbJSON:           "json",
}

// message prefixes; DbOther renders its message bare.
var dbPrefixes = [dbKindCount]string{
	DbPasswordHash: "password hash",
	DbEncryption:   "encryption",
	DbKeypair:      "keypair",
	DbStorage:      "storage",
	DbConnection:   "connection",
	DbMigration:    "migration",
	DbTypeMismatch: "type mismatch",
	DbNotFound:     "not found",
	DbFile:         "file",
	DbJSON:         "json",
}

// DbKinds returns every storage error kind in declaration order.
func DbKinds() []DbKind {
	out := make([]DbKind, 0, dbKindCount)
	for k := DbKind(0); k < dbKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ParseDbKind returns the DbKind for a wire discriminant.
func ParseDbKind(discriminant string) (DbKind, bool) {
	for k := DbKind(0); k < dbKindCount; k++ {
		if dbDiscriminants[k] == discriminant {
			return k, true
		}
	}
	return 0, false
}

// Valid reports whether k is one of the declared storage kinds.
func (k DbKind) Valid() bool {
	return k >= 0 && k < dbKindCount
}

// String returns the snake_case discriminant of the kind.
func (k DbKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("db_kind(%d)", int(k))
	}
	return dbDiscriminants[k]
}

// DbError is a classified storage-layer failure. Message holds the cause
// already rendered to text; Model and ID are set only for DbModelNotFound.
// The original cause is kept for server-side unwrapping and is never
// serialized.
type DbError struct {
	Kind    DbKind
	Message string
	Model   string
	ID      string

	cause error
}

// ErrDbMissingContext is returned when a request carries no database handle.
var ErrDbMissingContext = &DbError{Kind: DbMissingContext}

func newDbError(kind DbKind, err error) *DbError {
	if err == nil {
		return nil
	}
	var existing *DbError
	if errors.As(err, &existing) && existing.Kind == kind {
		return existing
	}
	return &DbError{Kind: kind, Message: err.Error(), cause: err}
}

// WrapDb classifies err as kind, keeping err as the cause. It returns nil
// for a nil err.
func WrapDb(kind DbKind, err error) *DbError { return newDbError(kind, err) }

// DbPasswordHashError classifies a password hashing failure.
func DbPasswordHashError(err error) *DbError { return newDbError(DbPasswordHash, err) }

// DbEncryptionError classifies an encryption or decryption failure.
func DbEncryptionError(err error) *DbError { return newDbError(DbEncryption, err) }

// DbKeypairError classifies a keypair parsing failure.
func DbKeypairError(err error) *DbError { return newDbError(DbKeypair, err) }

// DbStorageError classifies a generic driver failure.
func DbStorageError(err error) *DbError { return newDbError(DbStorage, err) }

// DbConnectionError classifies a failure to open a connection pool.
func DbConnectionError(err error) *DbError { return newDbError(DbConnection, err) }

// DbMigrationError classifies a migration failure.
func DbMigrationError(err error) *DbError { return newDbError(DbMigration, err) }

// DbTypeMismatchError classifies a scan conversion failure.
func DbTypeMismatchError(err error) *DbError { return newDbError(DbTypeMismatch, err) }

// DbFileError classifies a filesystem failure.
func DbFileError(err error) *DbError { return newDbError(DbFile, err) }

// DbJSONError classifies a JSON failure of stored data.
func DbJSONError(err error) *DbError { return newDbError(DbJSON, err) }

// DbOtherError classifies any other storage failure.
func DbOtherError(err error) *DbError { return newDbError(DbOther, err) }

// DbNotFoundError reports that a query matched no rows.
func DbNotFoundError(msg string) *DbError {
	return &DbError{Kind: DbNotFound, Message: msg}
}

// ModelNotFound reports that no record of model exists with id. Both values
// are exposed verbatim since they describe the caller's own request.
func ModelNotFound(model, id string) *DbError {
	return &DbError{Kind: DbModelNotFound, Model: model, ID: id}
}

// Error renders the storage error.
func (e *DbError) Error() string {
	switch e.Kind {
	case DbMissingContext:
		return "missing database in context"
	case DbModelNotFound:
		return fmt.Sprintf("model `%s` with id `%s` not found", e.Model, e.ID)
	case DbOther:
		return e.Message
	}
	if e.Kind.Valid() {
		return dbPrefixes[e.Kind] + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the captured cause, if any.
func (e *DbError) Unwrap() error {
	return e.cause
}

// Is matches another *DbError of the same kind with the same payload, or
// a payload-less sentinel of the same kind.
func (e *DbError) Is(target error) bool {
	t, ok := target.(*DbError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Message == "" && t.Model == "" && t.ID == "" {
		return true
	}
	return t.Message == e.Message && t.Model == e.Model && t.ID == e.ID
}

// Equal compares kind and payload, ignoring the captured cause.
func (e *DbError) Equal(other *DbError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Kind == other.Kind && e.Message == other.Message && e.Model == other.Model && e.ID == other.ID
}
