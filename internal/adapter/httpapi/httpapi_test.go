package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ifiokjr/verily/internal/auth"
	"github.com/ifiokjr/verily/internal/platform/crypto"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/platform/metrics"
	"github.com/ifiokjr/verily/internal/shared"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	router *gin.Engine
	db     database.Handle
}

func newFixture(t *testing.T, dev bool, opts ...auth.ServiceOption) fixture {
	t.Helper()
	h, err := database.SetupMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	svc := auth.NewService(h,
		auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), 15*time.Minute),
		24*time.Hour,
		append([]auth.ServiceOption{auth.WithHashCost(bcrypt.MinCost)}, opts...)...,
	)
	r := NewRouter(Options{DB: h, Auth: svc, Metrics: metrics.New(), Development: dev})
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })
	return fixture{router: r, db: h}
}

func (f fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *shared.AppError {
	t.Helper()
	appErr, err := shared.DecodeAppError(rec.Body.Bytes())
	require.NoError(t, err, rec.Body.String())
	return appErr
}

func TestHello(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/hello", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/hello_world", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var got string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, HelloWorld, got)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"ok"`, mustField(t, rec, "status"))
	assert.JSONEq(t, `"sqlite"`, mustField(t, rec, "dialect"))
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return string(m[key])
}

func TestSensitiveErrorsAreHiddenInProduction(t *testing.T) {
	tests := []struct {
		name   string
		dev    bool
		path   string
		want   string
		status int
	}{
		{name: "panic prod", path: "/panic", want: `{"type":"hidden"}`, status: http.StatusInternalServerError},
		{name: "panic dev", dev: true, path: "/panic", want: `{"type":"other","message":"panic: kaboom"}`, status: http.StatusInternalServerError},
		{name: "closed db prod", path: "/healthz", want: `{"type":"hidden"}`, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.dev)
			if tt.path == "/healthz" {
				require.NoError(t, f.db.Close())
			}
			rec := f.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestClosedDatabaseInDevelopment(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.db.Close())

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	appErr := decodeError(t, rec)
	require.Equal(t, shared.KindDb, appErr.Kind)
	assert.Equal(t, shared.DbConnection, appErr.Db.Kind)
}

func TestMissingDatabase(t *testing.T) {
	r := NewRouter(Options{Development: true})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"type":"db","error":{"type":"missing_context"}}`, rec.Body.String())
}

func TestAccountFlow(t *testing.T) {
	f := newFixture(t, false)
	creds := map[string]string{"username": "ada", "password": "correct horse"}

	rec := f.do(t, http.MethodPost, "/api/signup", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.AccessToken)

	rec = f.do(t, http.MethodGet, "/api/me", nil, "Authorization", "Bearer "+sess.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"ada"`, mustField(t, rec, "username"))

	rec = f.do(t, http.MethodPost, "/api/login", creds)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": sess.RefreshToken.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))

	rec = f.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": sess.RefreshToken.String()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"type":"refresh_token_revoked"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/logout", nil, "Authorization", "Bearer "+rotated.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": rotated.RefreshToken.String()})
	assert.JSONEq(t, `{"type":"refresh_token_revoked"}`, rec.Body.String())
}

func TestAccountErrors(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/api/signup", map[string]string{"username": "ada", "password": "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		header []string
		status int
		kind   shared.Kind
	}{
		{name: "taken username", method: http.MethodPost, path: "/api/signup", body: map[string]string{"username": "ada", "password": "another one"}, status: http.StatusConflict, kind: shared.KindUsernameNotAvailable},
		{name: "wrong password", method: http.MethodPost, path: "/api/login", body: map[string]string{"username": "ada", "password": "wrong password"}, status: http.StatusNotFound, kind: shared.KindUsernameNotAssociatedWithActor},
		{name: "no token", method: http.MethodGet, path: "/api/me", status: http.StatusUnauthorized, kind: shared.KindAccessTokenRequired},
		{name: "bad token", method: http.MethodGet, path: "/api/me", header: []string{"Authorization", "Bearer nope"}, status: http.StatusUnauthorized, kind: shared.KindAccessTokenInvalid},
		{name: "unknown refresh token", method: http.MethodPost, path: "/api/refresh", body: map[string]string{"refresh_token": "7d444840-9dc0-11d1-b245-5ffdce74fad2"}, status: http.StatusUnauthorized, kind: shared.KindRefreshTokenInvalid},
		{name: "empty body", method: http.MethodPost, path: "/api/login", status: http.StatusBadRequest, kind: shared.KindJSON},
		{name: "wrong json type", method: http.MethodPost, path: "/api/login", body: map[string]int{"username": 1}, status: http.StatusBadRequest, kind: shared.KindJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, tt.header...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decodeError(t, rec).Kind)
		})
	}
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/signup", map[string]string{"username": "a!", "password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	appErr := decodeError(t, rec)
	require.Equal(t, shared.KindValidation, appErr.Kind)
	assert.Equal(t, []string{"password", "username"}, appErr.Fields.Fields())
	assert.Equal(t, "min", appErr.Fields["password"][0].Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodGet, "/panic", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `verily_errors_total{source="http",type="other"} 1`)
	assert.Contains(t, rec.Body.String(), `verily_http_requests_total{method="GET",route="/panic",status="500"} 1`)
}

func TestSessionsListClients(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw, err := crypto.ParseKey(key)
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(raw)
	require.NoError(t, err)

	f := newFixture(t, false, auth.WithCipher(cipher))
	creds := map[string]string{"username": "ada", "password": "correct horse"}

	rec := f.do(t, http.MethodPost, "/api/signup", creds, "User-Agent", "laptop/1.0")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	rec = f.do(t, http.MethodPost, "/api/login", creds, "User-Agent", "phone/2.0")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/sessions", nil, "Authorization", "Bearer "+sess.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), sess.RefreshToken.String())

	var list []auth.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	clients := make([]string, 0, len(list))
	for _, s := range list {
		clients = append(clients, s.Client)
	}
	assert.ElementsMatch(t, []string{"laptop/1.0", "phone/2.0"}, clients)

	rec = f.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
