// Package rpcclient calls the server functions exposed under /api. Every
// failure it returns is a *shared.AppError: errors sent by the server are
// decoded from their wire form and transport failures become ServerFn.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/auth"
	"github.com/ifiokjr/verily/internal/platform/httpclient"
	"github.com/ifiokjr/verily/internal/shared"
)

// User is the account returned by Me.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is safe for concurrent use. It remembers the last session it
// received and refreshes it once when the server reports an expired
// access token.
type Client struct {
	base *url.URL
	http *httpclient.Client

	mu      sync.Mutex
	session auth.Session
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...httpclient.Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, shared.FromRequest(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, shared.NewMessage(shared.KindRequest, fmt.Sprintf("unsupported server url %q", baseURL))
	}
	return &Client{base: u, http: httpclient.New(opts...)}, nil
}

// Session returns the session held by the client.
func (c *Client) Session() auth.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession replaces the session held by the client.
func (c *Client) SetSession(s auth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// HelloWorld calls the hello_world server function.
func (c *Client) HelloWorld(ctx context.Context) (string, error) {
	var out string
	err := c.Call(ctx, "hello_world", nil, &out)
	return out, err
}

// Signup creates an account and keeps its session.
func (c *Client) Signup(ctx context.Context, username, password string) (auth.Session, error) {
	return c.openSession(ctx, "signup", credentials{Username: username, Password: password})
}

// Login opens a session for an existing account.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	return c.openSession(ctx, "login", credentials{Username: username, Password: password})
}

// Refresh rotates the refresh token held by the client.
func (c *Client) Refresh(ctx context.Context) (auth.Session, error) {
	token := c.Session().RefreshToken
	if token == uuid.Nil {
		return auth.Session{}, shared.ErrRefreshTokenInvalid
	}
	return c.openSession(ctx, "refresh", refreshRequest{RefreshToken: token})
}

// Me returns the signed in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.authed(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "me", nil, &u)
	})
	return u, err
}

// Sessions lists the live sessions of the signed in user.
func (c *Client) Sessions(ctx context.Context) ([]auth.SessionInfo, error) {
	var list []auth.SessionInfo
	err := c.authed(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "sessions", nil, &list)
	})
	return list, err
}

// Logout revokes every refresh token of the user and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.authed(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "logout", nil, nil)
	})
	if err == nil {
		c.SetSession(auth.Session{})
	}
	return err
}

// Call posts in as JSON to the server function name and decodes the
// result into out. A nil out discards the result.
func (c *Client) Call(ctx context.Context, name string, in, out any) error {
	return c.do(ctx, http.MethodPost, name, in, out)
}

// idempotent lists the server functions that may be replayed safely.
// Account calls rotate or create state on the server and are sent once.
var idempotent = map[string]bool{
	"hello_world": true,
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken uuid.UUID `json:"refresh_token"`
}

func (c *Client) openSession(ctx context.Context, name string, in any) (auth.Session, error) {
	var s auth.Session
	if err := c.Call(ctx, name, in, &s); err != nil {
		return auth.Session{}, err
	}
	c.SetSession(s)
	return s, nil
}

// authed runs fn and, when the access token has expired, refreshes the
// session once and runs fn again.
func (c *Client) authed(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, shared.ErrAccessTokenExpired) || c.Session().RefreshToken == uuid.Nil {
		return err
	}
	if _, rerr := c.Refresh(ctx); rerr != nil {
		return rerr
	}
	return fn(ctx)
}

func (c *Client) do(ctx context.Context, method, name string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return shared.FromJSON(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath("api", name).String(), body)
	if err != nil {
		return shared.FromRequest(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost && idempotent[name] {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if token := c.Session().AccessToken; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			return decodeFailure(statusErr.StatusCode, statusErr.Body)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return shared.FromServerFn(ctxErr)
		}
		return shared.FromServerFn(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return shared.FromServerFn(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return shared.FromJSON(err)
	}
	return nil
}

// decodeFailure turns an error response into the AppError it carries.
// A body without a discriminant becomes ServerFn; an unknown one is kept
// as Other.
func decodeFailure(status int, body []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err == nil && head.Type != "" {
		if appErr, err := shared.DecodeAppError(body); err == nil {
			return appErr
		}
	}
	return shared.NewMessage(shared.KindServerFn, fmt.Sprintf("unexpected status %d", status))
}
