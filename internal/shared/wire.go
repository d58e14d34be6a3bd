package shared

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// appErrorWire is the tagged wire object shared by server and clients:
// "type" holds the discriminant and the variant's fields sit beside it.
// Pointer fields keep the payload of each variant present even when it is
// a zero value, and absent for other variants.
type appErrorWire struct {
	Type        string            `json:"type"`
	Action      *string           `json:"action,omitempty"`
	ResourceID  *uuid.UUID        `json:"resource_id,omitempty"`
	Description *string           `json:"description,omitempty"`
	Name        *string           `json:"name,omitempty"`
	ID          *uuid.UUID        `json:"id,omitempty"`
	Username    *string           `json:"username,omitempty"`
	Variable    *string           `json:"variable,omitempty"`
	Message     *string           `json:"message,omitempty"`
	Error       *DbError          `json:"error,omitempty"`
	Errors      *ValidationErrors `json:"errors,omitempty"`
}

// MarshalJSON encodes the error in its tagged wire form, for example
// {"type":"not_found","name":"user","id":"…"}.
func (e AppError) MarshalJSON() ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("shared: cannot encode invalid %s", e.Kind)
	}
	w := appErrorWire{Type: e.Kind.String()}
	switch e.Kind {
	case KindUnauthorizedAction:
		w.Action, w.ResourceID, w.Description = &e.Action, &e.ResourceID, &e.Description
	case KindNotFound, KindAlreadyDeleted:
		w.Name, w.ID = &e.Name, &e.ID
	case KindUserNotFound:
		w.ID = &e.ID
	case KindUsernameNotAssociatedWithActor, KindUsernameNotAvailable:
		w.Username = &e.Username
	case KindEnvMissing, KindEnvInvalid:
		w.Variable = &e.Variable
	case KindDb:
		w.Error = e.Db
		if w.Error == nil {
			w.Error = &DbError{Kind: DbOther}
		}
	case KindSerde, KindJSON, KindRequest, KindJWT, KindWebauthn, KindOther, KindServerFn:
		w.Message = &e.Message
	case KindValidation:
		fields := e.Fields
		if fields == nil {
			fields = ValidationErrors{}
		}
		w.Errors = &fields
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged wire form. Unknown payload fields are
// ignored, and an unrecognized discriminant decodes to Other so that a
// newer server never crashes an older client.
func (e *AppError) UnmarshalJSON(data []byte) error {
	var w appErrorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind, ok := ParseKind(w.Type)
	if !ok {
		*e = AppError{Kind: KindOther, Message: fmt.Sprintf("unrecognized error type %q", w.Type)}
		return nil
	}

	out := AppError{Kind: kind}
	switch kind {
	case KindUnauthorizedAction:
		out.Action = deref(w.Action)
		out.ResourceID = deref(w.ResourceID)
		out.Description = deref(w.Description)
	case KindNotFound, KindAlreadyDeleted:
		out.Name = deref(w.Name)
		out.ID = deref(w.ID)
	case KindUserNotFound:
		out.ID = deref(w.ID)
	case KindUsernameNotAssociatedWithActor, KindUsernameNotAvailable:
		out.Username = deref(w.Username)
	case KindEnvMissing, KindEnvInvalid:
		out.Variable = deref(w.Variable)
	case KindDb:
		out.Db = w.Error
		if out.Db == nil {
			out.Db = &DbError{Kind: DbOther}
		}
	case KindSerde, KindJSON, KindRequest, KindJWT, KindWebauthn, KindOther, KindServerFn:
		out.Message = deref(w.Message)
	case KindValidation:
		out.Fields = deref(w.Errors)
		if out.Fields == nil {
			out.Fields = ValidationErrors{}
		}
	}
	*e = out
	return nil
}

// DecodeAppError decodes a wire object into an AppError.
func DecodeAppError(data []byte) (*AppError, error) {
	var e AppError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PeekKind reads only the discriminant of a wire object. The boolean is
// false when the discriminant is not a known variant.
func PeekKind(data []byte) (Kind, bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, false, err
	}
	kind, ok := ParseKind(head.Type)
	return kind, ok, nil
}

type dbErrorWire struct {
	Type    string  `json:"type"`
	Message *string `json:"message,omitempty"`
	Model   *string `json:"model,omitempty"`
	ID      *string `json:"id,omitempty"`
}

// MarshalJSON encodes the storage error, for example
// {"type":"model_not_found","model":"user","id":"42"}. The captured cause
// is never encoded.
func (e DbError) MarshalJSON() ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("shared: cannot encode invalid %s", e.Kind)
	}
	w := dbErrorWire{Type: e.Kind.String()}
	switch e.Kind {
	case DbMissingContext:
	case DbModelNotFound:
		w.Model, w.ID = &e.Model, &e.ID
	default:
		w.Message = &e.Message
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the storage error wire form. Unknown
// discriminants decode to DbOther.
func (e *DbError) UnmarshalJSON(data []byte) error {
	var w dbErrorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, ok := ParseDbKind(w.Type)
	if !ok {
		*e = DbError{Kind: DbOther, Message: fmt.Sprintf("unrecognized database error type %q", w.Type)}
		return nil
	}
	out := DbError{Kind: kind}
	switch kind {
	case DbMissingContext:
	case DbModelNotFound:
		out.Model = deref(w.Model)
		out.ID = deref(w.ID)
	default:
		out.Message = deref(w.Message)
	}
	*e = out
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
