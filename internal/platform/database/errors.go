package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"net"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/ifiokjr/verily/internal/platform/sqlite"
	"github.com/ifiokjr/verily/internal/shared"
)

// Classify maps a raw driver, pool or filesystem error to a storage error
// kind. Errors that already are a *shared.DbError are returned as is, and
// the original error stays reachable through errors.Is and errors.As.
//
//	sql.ErrNoRows, pgx.ErrNoRows              not_found
//	bad or closed connections, dial failures  connection
//	golang-migrate state errors               migration
//	bcrypt failures                           password_hash
//	scan conversion failures                  type_mismatch
//	encoding/json failures                    json
//	*fs.PathError                             file
//	anything else                             storage
func Classify(err error) *shared.DbError {
	if err == nil {
		return nil
	}

	var dbErr *shared.DbError
	if errors.As(err, &dbErr) {
		return dbErr
	}

	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, pgx.ErrNoRows):
		return shared.WrapDb(shared.DbNotFound, err)
	case isConnectionError(err):
		return shared.DbConnectionError(err)
	case isMigrationError(err):
		return shared.DbMigrationError(err)
	case isPasswordHashError(err):
		return shared.DbPasswordHashError(err)
	case isTypeMismatch(err):
		return shared.DbTypeMismatchError(err)
	case shared.IsJSONError(err):
		return shared.DbJSONError(err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return shared.DbFileError(err)
	}
	return shared.DbStorageError(err)
}

// NotFoundAs turns a not_found storage error into model_not_found for the
// given model and id. Other errors are classified unchanged.
func NotFoundAs(err error, model, id string) error {
	if err == nil {
		return nil
	}
	dbErr := Classify(err)
	if dbErr.Kind == shared.DbNotFound {
		return shared.ModelNotFound(model, id)
	}
	return dbErr
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTypeMismatch(err error) bool {
	var scanErr pgx.ScanArgError
	if errors.As(err, &scanErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42804", "22P02": // datatype_mismatch, invalid_text_representation
			return true
		}
		return false
	}
	// database/sql reports conversion failures from Rows.Scan and Row.Scan
	// as an untyped fmt error "sql: Scan error on column index N, name ...",
	// wrapping the strconv or driver cause. Wrapping callers keep the prefix
	// inside the message, so match anywhere.
	return strings.Contains(err.Error(), "sql: Scan error on column")
}

func isMigrationError(err error) bool {
	var dirty migrate.ErrDirty
	return errors.As(err, &dirty) ||
		errors.Is(err, migrate.ErrLocked) ||
		errors.Is(err, migrate.ErrLockTimeout) ||
		errors.Is(err, migrate.ErrNilVersion)
}

func isPasswordHashError(err error) bool {
	if errors.Is(err, bcrypt.ErrHashTooShort) ||
		errors.Is(err, bcrypt.ErrPasswordTooLong) ||
		errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return true
	}
	var (
		costErr    bcrypt.InvalidCostError
		prefixErr  bcrypt.InvalidHashPrefixError
		versionErr bcrypt.HashVersionTooNewError
	)
	return errors.As(err, &costErr) || errors.As(err, &prefixErr) || errors.As(err, &versionErr)
}

// IsUniqueViolation reports whether err was caused by a UNIQUE or PRIMARY
// KEY constraint on either dialect.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return sqlite.IsUniqueViolation(err)
}
