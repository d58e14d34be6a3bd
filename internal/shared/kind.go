package shared

import (
	"fmt"
	"net/http"
)

// Kind identifies which variant of the application error union an
// AppError is. The set is closed: every value in Kinds() has an entry in
// kindTable, and nothing else is ever put on the wire.
type Kind int

const (
	// KindNotConnected means the client has no connection to the server.
	KindNotConnected Kind = iota
	// KindUnauthorizedAction means the caller may not act on a resource.
	KindUnauthorizedAction
	// KindNotFound means an entity with the given id does not exist.
	KindNotFound
	// KindAlreadyDeleted means an entity existed but has been deleted.
	KindAlreadyDeleted
	// KindAccessTokenRequired means no access token was presented.
	KindAccessTokenRequired
	// KindAccessTokenExpired means the access token is past its expiry.
	KindAccessTokenExpired
	// KindAccessTokenInvalid means the access token failed verification.
	KindAccessTokenInvalid
	// KindRefreshTokenExpired means the refresh token is past its expiry.
	KindRefreshTokenExpired
	// KindRefreshTokenInvalid means the refresh token is unknown or malformed.
	KindRefreshTokenInvalid
	// KindRefreshTokenRevoked means the refresh token was revoked.
	KindRefreshTokenRevoked
	// KindUsernameNotAssociatedWithActor means a username has no owner.
	KindUsernameNotAssociatedWithActor
	// KindUsernameNotAvailable means a username is already taken.
	KindUsernameNotAvailable
	// KindUserNotFound means no user exists with the given id.
	KindUserNotFound
	// KindRegistrationChallengeNotFound means no pending challenge exists.
	KindRegistrationChallengeNotFound
	// KindRegistrationChallengeExpired means the challenge timed out.
	KindRegistrationChallengeExpired
	// KindRegistrationChallengeInvalid means the challenge response was wrong.
	KindRegistrationChallengeInvalid
	// KindMissingContext means a request-scoped value was not published.
	KindMissingContext
	// KindEnvMissing means a required environment variable is unset.
	KindEnvMissing
	// KindEnvInvalid means an environment variable has an invalid value.
	KindEnvInvalid
	// KindDb wraps a storage-layer DbError.
	KindDb
	// KindSerde represents a non-JSON (de)serialization failure.
	KindSerde
	// KindJSON represents a JSON (de)serialization failure.
	KindJSON
	// KindRequest represents an outbound HTTP transport failure.
	KindRequest
	// KindJWT represents a token codec failure.
	KindJWT
	// KindWebauthn represents a credential protocol failure.
	KindWebauthn
	// KindOther represents any other failure, rendered as its message.
	KindOther
	// KindValidation carries field-level validation errors.
	KindValidation
	// KindServerFn represents a failed call across the client/server tiers.
	KindServerFn
	// KindHidden means detail was withheld on purpose.
	KindHidden

	kindCount
)

// kindInfo is the classification row for one Kind.
type kindInfo struct {
	discriminant string
	access       bool // access token lifecycle
	refresh      bool // refresh token lifecycle
	sensitive    bool // detail may reveal server internals
	status       int
}

var kindTable = [kindCount]kindInfo{
	KindNotConnected:                   {discriminant: "not_connected", status: http.StatusServiceUnavailable},
	KindUnauthorizedAction:             {discriminant: "unauthorized_action", status: http.StatusForbidden},
	KindNotFound:                       {discriminant: "not_found", status: http.StatusNotFound},
	KindAlreadyDeleted:                 {discriminant: "already_deleted", status: http.StatusGone},
	KindAccessTokenRequired:            {discriminant: "access_token_required", access: true, status: http.StatusUnauthorized},
	KindAccessTokenExpired:             {discriminant: "access_token_expired", access: true, status: http.StatusUnauthorized},
	KindAccessTokenInvalid:             {discriminant: "access_token_invalid", access: true, status: http.StatusUnauthorized},
	KindRefreshTokenExpired:            {discriminant: "refresh_token_expired", refresh: true, status: http.StatusUnauthorized},
	KindRefreshTokenInvalid:            {discriminant: "refresh_token_invalid", refresh: true, status: http.StatusUnauthorized},
	KindRefreshTokenRevoked:            {discriminant: "refresh_token_revoked", refresh: true, status: http.StatusUnauthorized},
	KindUsernameNotAssociatedWithActor: {discriminant: "username_not_associated_with_actor", status: http.StatusNotFound},
	KindUsernameNotAvailable:           {discriminant: "username_not_available", status: http.StatusConflict},
	KindUserNotFound:                   {discriminant: "user_not_found", status: http.StatusNotFound},
	KindRegistrationChallengeNotFound:  {discriminant: "registration_challenge_not_found", status: http.StatusNotFound},
	KindRegistrationChallengeExpired:   {discriminant: "registration_challenge_expired", status: http.StatusGone},
	KindRegistrationChallengeInvalid:   {discriminant: "registration_challenge_invalid", status: http.StatusBadRequest},
	KindMissingContext:                 {discriminant: "missing_context", status: http.StatusInternalServerError},
	KindEnvMissing:                     {discriminant: "env_missing", status: http.StatusInternalServerError},
	KindEnvInvalid:                     {discriminant: "env_invalid", status: http.StatusInternalServerError},
	KindDb:                             {discriminant: "db", sensitive: true, status: http.StatusInternalServerError},
	KindSerde:                          {discriminant: "serde", status: http.StatusBadRequest},
	KindJSON:                           {discriminant: "json", status: http.StatusBadRequest},
	KindRequest:                        {discriminant: "request", status: http.StatusBadGateway},
	KindJWT:                            {discriminant: "jwt", sensitive: true, status: http.StatusUnauthorized},
	KindWebauthn:                       {discriminant: "webauthn", sensitive: true, status: http.StatusBadRequest},
	KindOther:                          {discriminant: "other", sensitive: true, status: http.StatusInternalServerError},
	KindValidation:                     {discriminant: "validation", status: http.StatusUnprocessableEntity},
	KindServerFn:                       {discriminant: "server_fn", status: http.StatusBadGateway},
	KindHidden:                         {discriminant: "hidden", status: http.StatusInternalServerError},
}

var kindByDiscriminant = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		m[kindTable[k].discriminant] = k
	}
	return m
}()

// Kinds returns every variant of the application error union in
// declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Discriminants returns the wire tag of every variant, in the same order
// as Kinds. Clients can switch on these without decoding payloads.
func Discriminants() []string {
	out := make([]string, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, kindTable[k].discriminant)
	}
	return out
}

// ParseKind returns the Kind for a wire discriminant.
func ParseKind(discriminant string) (Kind, bool) {
	k, ok := kindByDiscriminant[discriminant]
	return k, ok
}

// Valid reports whether k is one of the declared variants.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// String returns the snake_case discriminant of the Kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindTable[k].discriminant
}

// IsAccessTokenError reports whether k is an access token lifecycle kind.
func (k Kind) IsAccessTokenError() bool {
	return k.Valid() && kindTable[k].access
}

// IsRefreshTokenError reports whether k is a refresh token lifecycle kind.
func (k Kind) IsRefreshTokenError() bool {
	return k.Valid() && kindTable[k].refresh
}

// IsAuthError reports whether k requires the caller to re-authenticate.
func (k Kind) IsAuthError() bool {
	return k.IsAccessTokenError() || k.IsRefreshTokenError()
}

// IsRetryable reports whether an error of this kind may be retried.
// Auth failures need a new credential, not another attempt.
func (k Kind) IsRetryable() bool {
	return !k.IsAuthError()
}

// Sensitive reports whether the detail of this kind is withheld from
// untrusted consumers.
func (k Kind) Sensitive() bool {
	return k.Valid() && kindTable[k].sensitive
}

// HTTPStatus returns the response status used when this kind reaches the
// HTTP adapter.
func (k Kind) HTTPStatus() int {
	if !k.Valid() {
		return http.StatusInternalServerError
	}
	return kindTable[k].status
}
