package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AppError is the only error type surfaced across the service boundary.
// Kind selects the variant; only the payload fields belonging to that
// variant are meaningful:
//
//	UnauthorizedAction              Action, ResourceID, Description
//	NotFound, AlreadyDeleted        Name, ID
//	UserNotFound                    ID
//	UsernameNotAssociatedWithActor  Username
//	UsernameNotAvailable            Username
//	EnvMissing, EnvInvalid          Variable
//	Db                              Db
//	Serde, JSON, Request, JWT,
//	Webauthn, Other, ServerFn       Message
//	Validation                      Fields
//
// No variant holds live resources, so values can be copied, compared and
// serialized freely.
type AppError struct {
	Kind Kind

	Action      string
	ResourceID  uuid.UUID
	Description string
	Name        string
	ID          uuid.UUID
	Username    string
	Variable    string
	Message     string
	Db          *DbError
	Fields      ValidationErrors
}

// Payload-less variants, usable as errors.Is targets.
var (
	ErrNotConnected                  = &AppError{Kind: KindNotConnected}
	ErrAccessTokenRequired           = &AppError{Kind: KindAccessTokenRequired}
	ErrAccessTokenExpired            = &AppError{Kind: KindAccessTokenExpired}
	ErrAccessTokenInvalid            = &AppError{Kind: KindAccessTokenInvalid}
	ErrRefreshTokenExpired           = &AppError{Kind: KindRefreshTokenExpired}
	ErrRefreshTokenInvalid           = &AppError{Kind: KindRefreshTokenInvalid}
	ErrRefreshTokenRevoked           = &AppError{Kind: KindRefreshTokenRevoked}
	ErrRegistrationChallengeNotFound = &AppError{Kind: KindRegistrationChallengeNotFound}
	ErrRegistrationChallengeExpired  = &AppError{Kind: KindRegistrationChallengeExpired}
	ErrRegistrationChallengeInvalid  = &AppError{Kind: KindRegistrationChallengeInvalid}
	ErrMissingContext                = &AppError{Kind: KindMissingContext}
	ErrHidden                        = &AppError{Kind: KindHidden}
)

func hidden() *AppError {
	return &AppError{Kind: KindHidden}
}

// NewUnauthorizedAction reports that the caller may not perform action on
// the resource with the given id.
func NewUnauthorizedAction(action string, resourceID uuid.UUID, description string) *AppError {
	return &AppError{Kind: KindUnauthorizedAction, Action: action, ResourceID: resourceID, Description: description}
}

// NewNotFound reports that no entity called name exists with id.
func NewNotFound(name string, id uuid.UUID) *AppError {
	return &AppError{Kind: KindNotFound, Name: name, ID: id}
}

// NewAlreadyDeleted reports that the entity was deleted before this request.
func NewAlreadyDeleted(name string, id uuid.UUID) *AppError {
	return &AppError{Kind: KindAlreadyDeleted, Name: name, ID: id}
}

// NewUsernameNotAssociatedWithActor reports a username without an owner.
func NewUsernameNotAssociatedWithActor(username string) *AppError {
	return &AppError{Kind: KindUsernameNotAssociatedWithActor, Username: username}
}

// NewUsernameNotAvailable reports a username that is already taken.
func NewUsernameNotAvailable(username string) *AppError {
	return &AppError{Kind: KindUsernameNotAvailable, Username: username}
}

// NewUserNotFound reports that no user exists with id.
func NewUserNotFound(id uuid.UUID) *AppError {
	return &AppError{Kind: KindUserNotFound, ID: id}
}

// NewEnvMissing reports that a required environment variable is unset.
func NewEnvMissing(variable string) *AppError {
	return &AppError{Kind: KindEnvMissing, Variable: variable}
}

// NewEnvInvalid reports that an environment variable has a bad value.
func NewEnvInvalid(variable string) *AppError {
	return &AppError{Kind: KindEnvInvalid, Variable: variable}
}

// NewMessage builds a message-carrying variant (Serde, JSON, Request, JWT,
// Webauthn, Other or ServerFn). It panics on any other kind.
func NewMessage(kind Kind, msg string) *AppError {
	switch kind {
	case KindSerde, KindJSON, KindRequest, KindJWT, KindWebauthn, KindOther, KindServerFn:
		return &AppError{Kind: kind, Message: msg}
	}
	panic(fmt.Sprintf("shared: %s does not carry a message", kind))
}

// Error renders the human-readable message bound to the variant.
func (e *AppError) Error() string {
	return e.Render()
}

// Render produces the message bound to the variant. It is deterministic
// and performs no I/O.
func (e *AppError) Render() string {
	switch e.Kind {
	case KindNotConnected:
		return "not connected"
	case KindUnauthorizedAction:
		return fmt.Sprintf("not authorized to %s `%s`: %s", e.Action, e.ResourceID, e.Description)
	case KindNotFound:
		return fmt.Sprintf("%s `%s` not found", e.Name, e.ID)
	case KindAlreadyDeleted:
		return fmt.Sprintf("%s `%s` has already been deleted", e.Name, e.ID)
	case KindAccessTokenRequired:
		return "access token required"
	case KindAccessTokenExpired:
		return "access token expired"
	case KindAccessTokenInvalid:
		return "access token invalid"
	case KindRefreshTokenExpired:
		return "refresh token expired"
	case KindRefreshTokenInvalid:
		return "refresh token invalid"
	case KindRefreshTokenRevoked:
		return "refresh token revoked"
	case KindUsernameNotAssociatedWithActor:
		return fmt.Sprintf("username `%s` is not associated with an actor", e.Username)
	case KindUsernameNotAvailable:
		return fmt.Sprintf("username `%s` is not available", e.Username)
	case KindUserNotFound:
		return fmt.Sprintf("user `%s` not found", e.ID)
	case KindRegistrationChallengeNotFound:
		return "registration challenge not found"
	case KindRegistrationChallengeExpired:
		return "registration challenge expired"
	case KindRegistrationChallengeInvalid:
		return "registration challenge invalid"
	case KindMissingContext:
		return "missing context"
	case KindEnvMissing:
		return fmt.Sprintf("environment variable `%s` is missing", e.Variable)
	case KindEnvInvalid:
		return fmt.Sprintf("environment variable `%s` is invalid", e.Variable)
	case KindDb:
		if e.Db == nil {
			return "database error"
		}
		return e.Db.Error()
	case KindSerde:
		return "serde: " + e.Message
	case KindJSON:
		return "json: " + e.Message
	case KindRequest:
		return "request: " + e.Message
	case KindJWT:
		return "jwt: " + e.Message
	case KindWebauthn:
		return "webauthn: " + e.Message
	case KindOther:
		return e.Message
	case KindValidation:
		return "validation failed: " + e.Fields.String()
	case KindServerFn:
		return "server function: " + e.Message
	case KindHidden:
		return "an error occurred"
	}
	return fmt.Sprintf("unknown error %s", e.Kind)
}

// Is reports whether target is an *AppError of the same kind. Sentinels
// such as ErrAccessTokenExpired match any error of their kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Kind == e.Kind
}

// Unwrap exposes the wrapped DbError of a Db variant.
func (e *AppError) Unwrap() error {
	if e.Kind == KindDb && e.Db != nil {
		return e.Db
	}
	return nil
}

// IsAccessTokenError reports whether e is an access token lifecycle error.
func (e *AppError) IsAccessTokenError() bool { return e.Kind.IsAccessTokenError() }

// IsRefreshTokenError reports whether e is a refresh token lifecycle error.
func (e *AppError) IsRefreshTokenError() bool { return e.Kind.IsRefreshTokenError() }

// IsAuthError reports whether e requires re-authentication.
func (e *AppError) IsAuthError() bool { return e.Kind.IsAuthError() }

// IsRetryable reports whether the failed operation may be retried. Retry
// count and backoff are the caller's decision.
func (e *AppError) IsRetryable() bool { return e.Kind.IsRetryable() }

// HTTPStatus returns the status code used when e is written to a client.
func (e *AppError) HTTPStatus() int { return e.Kind.HTTPStatus() }

// Redact returns the form of e that may be handed to a consumer governed
// by p. Sensitive kinds collapse to Hidden when p withholds detail; every
// other kind is returned unchanged.
func (e *AppError) Redact(p Policy) *AppError {
	if e == nil {
		return nil
	}
	if e.Kind.Sensitive() && !p.ShowSensitive() {
		return hidden()
	}
	return e
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
