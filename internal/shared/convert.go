package shared

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/golang-jwt/jwt/v5"
)

// Converter is implemented by collaborator error types that can describe
// themselves as an application error. Classify adapts any error in a
// chain that implements it.
type Converter interface {
	AppError() *AppError
}

// Two classes of conversion exist. Errors that only describe the shape of
// a request or response (JSON, serde, validation, outbound transport) are
// always exposed. Errors that can reveal implementation, credentials or
// storage schema (generic, JWT, WebAuthn, database) are exposed only when
// the policy allows and collapse to Hidden otherwise.

// FromError converts a generic error into Other, or Hidden when p
// withholds sensitive detail.
func (p Policy) FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if !p.ShowSensitive() {
		return hidden()
	}
	return &AppError{Kind: KindOther, Message: err.Error()}
}

// FromJSON converts a JSON encoding or decoding failure. Never hidden.
func (p Policy) FromJSON(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: KindJSON, Message: err.Error()}
}

// FromSerde converts a non-JSON parsing failure such as a malformed UUID
// or form value. Never hidden.
func (p Policy) FromSerde(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: KindSerde, Message: err.Error()}
}

// FromRequest converts an outbound HTTP transport failure. Never hidden.
func (p Policy) FromRequest(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: KindRequest, Message: err.Error()}
}

// FromWebauthn converts a WebAuthn protocol failure into Webauthn, or
// Hidden when p withholds sensitive detail.
func (p Policy) FromWebauthn(err error) *AppError {
	if err == nil {
		return nil
	}
	if !p.ShowSensitive() {
		return hidden()
	}
	return &AppError{Kind: KindWebauthn, Message: webauthnMessage(err)}
}

// FromJWT converts a token codec failure into JWT, or Hidden when p
// withholds sensitive detail.
func (p Policy) FromJWT(err error) *AppError {
	if err == nil {
		return nil
	}
	if !p.ShowSensitive() {
		return hidden()
	}
	return &AppError{Kind: KindJWT, Message: err.Error()}
}

// FromValidation converts field validation failures. Never hidden: the
// fields describe the caller's own input.
func (p Policy) FromValidation(errs validator.ValidationErrors) *AppError {
	if len(errs) == 0 {
		return nil
	}
	fields := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		fields.Add(fieldPath(fe.Namespace()), FieldError{
			Code:    fe.Tag(),
			Message: fe.Error(),
			Param:   fe.Param(),
		})
	}
	return &AppError{Kind: KindValidation, Fields: fields}
}

// FromDb wraps a storage error into Db, or Hidden when p withholds
// sensitive detail.
func (p Policy) FromDb(dbErr *DbError) *AppError {
	if dbErr == nil {
		return nil
	}
	if !p.ShowSensitive() {
		return hidden()
	}
	return &AppError{Kind: KindDb, Db: dbErr}
}

// FromServerFn wraps a failure of a call to the opposite tier.
func (p Policy) FromServerFn(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: KindServerFn, Message: err.Error()}
}

// FromConverter asks c for its application error and redacts it under p.
// A converter that returns nil yields Hidden.
func (p Policy) FromConverter(c Converter) *AppError {
	if c == nil {
		return nil
	}
	if appErr := c.AppError(); appErr != nil {
		return appErr.Redact(p)
	}
	return hidden()
}

// Classify converts any error into an AppError by dispatching to the
// named conversion for the first recognised error in the chain:
//
//  1. *AppError (redacted under p)
//  2. Converter
//  3. *DbError
//  4. validator.ValidationErrors
//  5. encoding/json errors
//  6. golang-jwt errors
//  7. WebAuthn *protocol.Error
//  8. *url.Error (outbound HTTP)
//
// Anything else goes through FromError. Classify returns nil for nil.
func (p Policy) Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Redact(p)
	}
	var conv Converter
	if errors.As(err, &conv) {
		return p.FromConverter(conv)
	}
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return p.FromDb(dbErr)
	}
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		return p.FromValidation(valErrs)
	}
	if IsJSONError(err) {
		return p.FromJSON(err)
	}
	if IsJWTError(err) {
		return p.FromJWT(err)
	}
	var waErr *protocol.Error
	if errors.As(err, &waErr) {
		return p.FromWebauthn(err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return p.FromRequest(err)
	}
	return p.FromError(err)
}

// FromError converts a generic error under DefaultPolicy.
func FromError(err error) *AppError { return DefaultPolicy().FromError(err) }

// FromJSON converts a JSON failure under DefaultPolicy.
func FromJSON(err error) *AppError { return DefaultPolicy().FromJSON(err) }

// FromSerde converts a parsing failure under DefaultPolicy.
func FromSerde(err error) *AppError { return DefaultPolicy().FromSerde(err) }

// FromRequest converts an outbound HTTP failure under DefaultPolicy.
func FromRequest(err error) *AppError { return DefaultPolicy().FromRequest(err) }

// FromWebauthn converts a WebAuthn failure under DefaultPolicy.
func FromWebauthn(err error) *AppError { return DefaultPolicy().FromWebauthn(err) }

// FromJWT converts a token codec failure under DefaultPolicy.
func FromJWT(err error) *AppError { return DefaultPolicy().FromJWT(err) }

// FromValidation converts validation failures under DefaultPolicy.
func FromValidation(errs validator.ValidationErrors) *AppError {
	return DefaultPolicy().FromValidation(errs)
}

// FromDb wraps a storage error under DefaultPolicy.
func FromDb(dbErr *DbError) *AppError { return DefaultPolicy().FromDb(dbErr) }

// FromServerFn wraps a cross-tier call failure under DefaultPolicy.
func FromServerFn(err error) *AppError { return DefaultPolicy().FromServerFn(err) }

// FromConverter adapts a Converter under DefaultPolicy.
func FromConverter(c Converter) *AppError { return DefaultPolicy().FromConverter(c) }

// Classify converts any error under DefaultPolicy.
func Classify(err error) *AppError { return DefaultPolicy().Classify(err) }

// IsJSONError reports whether err comes from encoding/json.
func IsJSONError(err error) bool {
	var (
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
		unsupportedTyp *json.UnsupportedTypeError
		unsupportedVal *json.UnsupportedValueError
		marshalerErr   *json.MarshalerError
		invalidErr     *json.InvalidUnmarshalError
	)
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &unsupportedTyp) ||
		errors.As(err, &unsupportedVal) ||
		errors.As(err, &marshalerErr) ||
		errors.As(err, &invalidErr)
}

var jwtErrors = []error{
	jwt.ErrInvalidKey,
	jwt.ErrInvalidKeyType,
	jwt.ErrHashUnavailable,
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenRequiredClaimMissing,
	jwt.ErrTokenInvalidAudience,
	jwt.ErrTokenExpired,
	jwt.ErrTokenUsedBeforeIssued,
	jwt.ErrTokenInvalidIssuer,
	jwt.ErrTokenInvalidSubject,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenInvalidId,
	jwt.ErrTokenInvalidClaims,
	jwt.ErrInvalidType,
}

// IsJWTError reports whether err comes from golang-jwt.
func IsJWTError(err error) bool {
	for _, target := range jwtErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func webauthnMessage(err error) string {
	var waErr *protocol.Error
	if !errors.As(err, &waErr) {
		return err.Error()
	}
	msg := waErr.Details
	if msg == "" {
		msg = waErr.Type
	}
	if waErr.DevInfo != "" {
		msg += ": " + waErr.DevInfo
	}
	return msg
}

// fieldPath drops the top-level struct name from a validator namespace,
// so "SignupRequest.email" becomes "email".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
