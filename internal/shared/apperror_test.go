package shared_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifiokjr/verily/internal/shared"
)

func TestKindsAreClosedAndDiscriminantsUnique(t *testing.T) {
	kinds := shared.Kinds()
	discriminants := shared.Discriminants()
	require.Len(t, discriminants, len(kinds))

	seen := make(map[string]bool, len(discriminants))
	for i, k := range kinds {
		d := discriminants[i]
		assert.False(t, seen[d], "duplicate discriminant %q", d)
		seen[d] = true

		parsed, ok := shared.ParseKind(d)
		require.True(t, ok)
		assert.Equal(t, k, parsed)
		assert.Equal(t, d, k.String())
	}

	_, ok := shared.ParseKind("NotFound")
	assert.False(t, ok)
	assert.False(t, shared.Kind(-1).Valid())
	assert.Equal(t, http.StatusInternalServerError, shared.Kind(1000).HTTPStatus())
}

func TestAuthClassification(t *testing.T) {
	access := []shared.Kind{
		shared.KindAccessTokenRequired,
		shared.KindAccessTokenExpired,
		shared.KindAccessTokenInvalid,
	}
	refresh := []shared.Kind{
		shared.KindRefreshTokenExpired,
		shared.KindRefreshTokenInvalid,
		shared.KindRefreshTokenRevoked,
	}

	for _, k := range access {
		assert.True(t, k.IsAccessTokenError(), k.String())
		assert.False(t, k.IsRefreshTokenError(), k.String())
	}
	for _, k := range refresh {
		assert.True(t, k.IsRefreshTokenError(), k.String())
		assert.False(t, k.IsAccessTokenError(), k.String())
	}

	auth := 0
	for _, k := range shared.Kinds() {
		if k.IsAuthError() {
			auth++
		}
		assert.Equal(t, !k.IsAuthError(), k.IsRetryable(), k.String())
	}
	assert.Equal(t, 6, auth)
}

func TestSensitiveKinds(t *testing.T) {
	sensitive := map[shared.Kind]bool{
		shared.KindDb:       true,
		shared.KindJWT:      true,
		shared.KindWebauthn: true,
		shared.KindOther:    true,
	}
	for _, k := range shared.Kinds() {
		assert.Equal(t, sensitive[k], k.Sensitive(), k.String())
	}
}

func TestAppErrorRender(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11")

	tests := []struct {
		name string
		err  *shared.AppError
		want string
	}{
		{name: "not connected", err: shared.ErrNotConnected, want: "not connected"},
		{
			name: "unauthorized action",
			err:  shared.NewUnauthorizedAction("delete", id, "not the owner"),
			want: "not authorized to delete `6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11`: not the owner",
		},
		{name: "not found", err: shared.NewNotFound("post", id), want: "post `6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11` not found"},
		{name: "already deleted", err: shared.NewAlreadyDeleted("post", id), want: "post `6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11` has already been deleted"},
		{name: "access token expired", err: shared.ErrAccessTokenExpired, want: "access token expired"},
		{name: "refresh token revoked", err: shared.ErrRefreshTokenRevoked, want: "refresh token revoked"},
		{name: "username taken", err: shared.NewUsernameNotAvailable("ada"), want: "username `ada` is not available"},
		{name: "username orphan", err: shared.NewUsernameNotAssociatedWithActor("ada"), want: "username `ada` is not associated with an actor"},
		{name: "user not found", err: shared.NewUserNotFound(id), want: "user `6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11` not found"},
		{name: "env missing", err: shared.NewEnvMissing("JWT_SECRET"), want: "environment variable `JWT_SECRET` is missing"},
		{name: "env invalid", err: shared.NewEnvInvalid("HTTP_ADDR"), want: "environment variable `HTTP_ADDR` is invalid"},
		{name: "db", err: &shared.AppError{Kind: shared.KindDb, Db: shared.ModelNotFound("user", "42")}, want: "model `user` with id `42` not found"},
		{name: "other", err: shared.NewMessage(shared.KindOther, "disk full"), want: "disk full"},
		{name: "json", err: shared.NewMessage(shared.KindJSON, "unexpected end"), want: "json: unexpected end"},
		{name: "server fn", err: shared.NewMessage(shared.KindServerFn, "bad gateway"), want: "server function: bad gateway"},
		{
			name: "validation",
			err: &shared.AppError{Kind: shared.KindValidation, Fields: shared.ValidationErrors{
				"name":  {{Code: "required"}},
				"email": {{Code: "required"}, {Code: "email"}},
			}},
			want: "validation failed: email: required, email; name: required",
		},
		{name: "hidden", err: shared.ErrHidden, want: "an error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.Equal(t, tt.err.Error(), tt.err.Render())
		})
	}
}

func TestNewMessagePanicsOnPayloadKinds(t *testing.T) {
	assert.Panics(t, func() { shared.NewMessage(shared.KindNotFound, "x") })
	assert.NotPanics(t, func() { shared.NewMessage(shared.KindWebauthn, "x") })
}

func TestAppErrorIs(t *testing.T) {
	err := shared.Wrap(&shared.AppError{Kind: shared.KindAccessTokenInvalid}, "auth")
	assert.True(t, errors.Is(err, shared.ErrAccessTokenInvalid))
	assert.False(t, errors.Is(err, shared.ErrAccessTokenExpired))

	dbErr := shared.ModelNotFound("user", "42")
	appErr := &shared.AppError{Kind: shared.KindDb, Db: dbErr}
	var target *shared.DbError
	require.True(t, errors.As(appErr, &target))
	assert.Same(t, dbErr, target)
}

func TestRedact(t *testing.T) {
	client := shared.Policy{}
	dev := shared.Policy{Development: true}
	server := shared.Policy{Trusted: true}

	other := shared.NewMessage(shared.KindOther, "disk full")
	validation := &shared.AppError{Kind: shared.KindValidation, Fields: shared.ValidationErrors{"email": {{Code: "email"}}}}

	assert.Equal(t, shared.KindHidden, other.Redact(client).Kind)
	assert.NotContains(t, other.Redact(client).Error(), "disk full")
	assert.Same(t, other, other.Redact(dev))
	assert.Same(t, other, other.Redact(server))
	assert.Same(t, validation, validation.Redact(client))

	redacted := other.Redact(client)
	redacted.Message = "mutated"
	assert.Empty(t, shared.ErrHidden.Message)

	var nilErr *shared.AppError
	assert.Nil(t, nilErr.Redact(client))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, shared.ErrAccessTokenExpired.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, shared.NewUserNotFound(uuid.Nil).HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, (&shared.AppError{Kind: shared.KindValidation}).HTTPStatus())
	assert.Equal(t, http.StatusConflict, shared.NewUsernameNotAvailable("ada").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, shared.ErrHidden.HTTPStatus())
}

func TestPolicy(t *testing.T) {
	assert.False(t, shared.Policy{}.ShowSensitive())
	assert.True(t, shared.Policy{Trusted: true}.ShowSensitive())
	assert.True(t, shared.Policy{Development: true}.ShowSensitive())
	assert.True(t, shared.ClientPolicy(true).ShowSensitive())
	assert.False(t, shared.ClientPolicy(true).Trusted)
	assert.Equal(t, shared.DefaultPolicy().ShowSensitive(), shared.ShouldShowSensitiveErrors())
}
