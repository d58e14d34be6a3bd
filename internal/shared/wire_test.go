package shared_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifiokjr/verily/internal/shared"
)

func TestAppErrorWireForm(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11")

	tests := []struct {
		name string
		err  *shared.AppError
		want string
	}{
		{name: "payload-less", err: shared.ErrAccessTokenExpired, want: `{"type":"access_token_expired"}`},
		{
			name: "not found",
			err:  shared.NewNotFound("user", id),
			want: `{"type":"not_found","name":"user","id":"6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11"}`,
		},
		{
			name: "unauthorized action keeps empty description",
			err:  shared.NewUnauthorizedAction("edit", id, ""),
			want: `{"type":"unauthorized_action","action":"edit","resource_id":"6f1c2a8e-7c43-4b8e-9a53-2f8a3c1d0e11","description":""}`,
		},
		{name: "env", err: shared.NewEnvMissing("JWT_SECRET"), want: `{"type":"env_missing","variable":"JWT_SECRET"}`},
		{
			name: "db nested",
			err:  &shared.AppError{Kind: shared.KindDb, Db: shared.ModelNotFound("user", "42")},
			want: `{"type":"db","error":{"type":"model_not_found","model":"user","id":"42"}}`,
		},
		{
			name: "db missing context",
			err:  &shared.AppError{Kind: shared.KindDb, Db: shared.ErrDbMissingContext},
			want: `{"type":"db","error":{"type":"missing_context"}}`,
		},
		{name: "message", err: shared.NewMessage(shared.KindServerFn, "timeout"), want: `{"type":"server_fn","message":"timeout"}`},
		{
			name: "validation",
			err:  &shared.AppError{Kind: shared.KindValidation, Fields: shared.ValidationErrors{"email": {{Code: "email"}}}},
			want: `{"type":"validation","errors":{"email":[{"code":"email"}]}}`,
		},
		{name: "hidden", err: shared.ErrHidden, want: `{"type":"hidden"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.err)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			decoded, err := shared.DecodeAppError(data)
			require.NoError(t, err)
			assert.Equal(t, tt.err, decoded)
		})
	}
}

func TestDecodeUnknownDiscriminant(t *testing.T) {
	decoded, err := shared.DecodeAppError([]byte(`{"type":"quota_exceeded","limit":3}`))
	require.NoError(t, err)
	assert.Equal(t, shared.KindOther, decoded.Kind)
	assert.Equal(t, `unrecognized error type "quota_exceeded"`, decoded.Message)

	var dbErr shared.DbError
	require.NoError(t, json.Unmarshal([]byte(`{"type":"deadlock"}`), &dbErr))
	assert.Equal(t, shared.DbOther, dbErr.Kind)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	decoded, err := shared.DecodeAppError([]byte(`{"type":"username_not_available","username":"ada","hint":"try ada2"}`))
	require.NoError(t, err)
	assert.Equal(t, shared.NewUsernameNotAvailable("ada"), decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := shared.DecodeAppError([]byte(`"not an object"`))
	assert.Error(t, err)

	_, err = shared.DecodeAppError([]byte(`{"type":"not_found","id":"not-a-uuid"}`))
	assert.Error(t, err)
}

func TestMarshalInvalidKind(t *testing.T) {
	_, err := json.Marshal(&shared.AppError{Kind: shared.Kind(999)})
	assert.Error(t, err)
}

func TestPeekKind(t *testing.T) {
	kind, ok, err := shared.PeekKind([]byte(`{"type":"refresh_token_revoked","extra":{"deep":true}}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, shared.KindRefreshTokenRevoked, kind)

	_, ok, err = shared.PeekKind([]byte(`{"type":"from_the_future"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = shared.PeekKind([]byte(`[`))
	assert.Error(t, err)
}
