package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/ifiokjr/verily/internal/shared"
)

// DefaultCost is the bcrypt work factor used by HashPassword.
const DefaultCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, DefaultCost)
}

// HashPasswordCost is HashPassword with an explicit work factor. Tests use
// bcrypt.MinCost.
func HashPasswordCost(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", shared.DbPasswordHashError(err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A wrong password
// is not an error; a malformed hash is.
func VerifyPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, shared.DbPasswordHashError(err)
	}
}
