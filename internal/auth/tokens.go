package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/shared"
)

// Issuer is the iss claim of every access token.
const Issuer = "verily"

// Tokens signs and verifies access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a codec using secret for HS256 signatures.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue returns a signed access token for userID and its expiry.
func (t *Tokens) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, shared.FromJWT(err)
	}
	return signed, expires, nil
}

// Verify checks token and returns the user id it was issued for.
//
//	empty token                 access_token_required
//	expired                     access_token_expired
//	bad signature or format     access_token_invalid
//	subject is not a UUID       jwt
func (t *Tokens) Verify(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, shared.ErrAccessTokenRequired
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, t.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, shared.ErrAccessTokenExpired
	default:
		return uuid.Nil, shared.ErrAccessTokenInvalid
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, shared.FromJWT(fmt.Errorf("%w: %w", jwt.ErrTokenInvalidSubject, err))
	}
	return id, nil
}

func (t *Tokens) key(*jwt.Token) (any, error) {
	return t.secret, nil
}

// BearerToken extracts the token from an Authorization header value. It
// returns "" when the header is not a bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CheckRefresh validates the lifecycle of a stored refresh token at now.
// Revocation wins over expiry; a token without an expiry is invalid.
func CheckRefresh(now, expiresAt time.Time, revokedAt *time.Time) error {
	switch {
	case revokedAt != nil:
		return shared.ErrRefreshTokenRevoked
	case expiresAt.IsZero():
		return shared.ErrRefreshTokenInvalid
	case !now.Before(expiresAt):
		return shared.ErrRefreshTokenExpired
	}
	return nil
}
