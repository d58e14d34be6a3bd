package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/platform/crypto"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/shared"
	"github.com/ifiokjr/verily/internal/store"
)

// Session is what a client receives after signing up, logging in or
// refreshing.
type Session struct {
	UserID           uuid.UUID `json:"user_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     uuid.UUID `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionInfo describes a live session without its refresh token.
type SessionInfo struct {
	Client    string    `json:"client,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service implements the account flows on top of the stores.
type Service struct {
	db         database.Handle
	users      *store.Users
	refresh    *store.RefreshTokens
	tokens     *Tokens
	cipher     *crypto.Cipher
	refreshTTL time.Duration
	hashCost   int
	now        func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) { s.hashCost = cost }
}

// WithCipher seals the client description stored with each session.
func WithCipher(c *crypto.Cipher) ServiceOption {
	return func(s *Service) { s.cipher = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
		s.tokens.now = now
	}
}

// NewService wires the account flows.
func NewService(h database.Handle, tokens *Tokens, refreshTTL time.Duration, opts ...ServiceOption) *Service {
	s := &Service{
		db:         h,
		users:      store.NewUsers(h),
		tokens:     tokens,
		refreshTTL: refreshTTL,
		hashCost:   crypto.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.refresh = store.NewRefreshTokens(h, store.WithCipher(s.cipher))
	return s
}

type clientKey struct{}

// WithClient records the description of the calling device, typically its
// User-Agent, for the sessions opened with ctx.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

func clientFrom(ctx context.Context) string {
	client, _ := ctx.Value(clientKey{}).(string)
	return client
}

// Signup creates an account and opens a session for it.
func (s *Service) Signup(ctx context.Context, username, password string) (Session, error) {
	hash, err := crypto.HashPasswordCost(password, s.hashCost)
	if err != nil {
		return Session{}, err
	}

	var sess Session
	err = s.db.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.Create(ctx, username, hash)
		if err != nil {
			return err
		}
		sess, err = s.openSession(ctx, u.ID)
		return err
	})
	return sess, err
}

// Login checks the password of username and opens a session. A wrong
// password is reported exactly like an unknown username.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return Session{}, err
	}
	ok, err := crypto.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, shared.NewUsernameNotAssociatedWithActor(username)
	}

	var sess Session
	err = s.db.WithinTx(ctx, func(ctx context.Context) error {
		sess, err = s.openSession(ctx, u.ID)
		return err
	})
	return sess, err
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new session is returned.
func (s *Service) Refresh(ctx context.Context, token uuid.UUID) (Session, error) {
	var sess Session
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		stored, err := s.refresh.Get(ctx, token)
		if err != nil {
			var dbErr *shared.DbError
			if errors.As(err, &dbErr) && dbErr.Kind == shared.DbModelNotFound {
				return shared.ErrRefreshTokenInvalid
			}
			return err
		}
		now := s.now()
		if err := CheckRefresh(now, stored.ExpiresAt, stored.RevokedAt); err != nil {
			return err
		}
		revoked, err := s.refresh.Revoke(ctx, stored.ID, now)
		if err != nil {
			return err
		}
		if !revoked {
			return shared.ErrRefreshTokenRevoked
		}
		sess, err = s.openSession(ctx, stored.UserID)
		return err
	})
	return sess, err
}

// Logout revokes every refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	_, err := s.refresh.RevokeAll(ctx, userID, s.now())
	return err
}

// Sessions lists the live sessions of the user, latest expiry first.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]SessionInfo, error) {
	live, err := s.refresh.Live(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(live))
	for _, t := range live {
		out = append(out, SessionInfo{Client: t.Client, ExpiresAt: t.ExpiresAt})
	}
	return out, nil
}

// Authenticate verifies an Authorization header and returns the live user
// it names.
func (s *Service) Authenticate(ctx context.Context, header string) (store.User, error) {
	id, err := s.tokens.Verify(BearerToken(header))
	if err != nil {
		return store.User{}, err
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		var dbErr *shared.DbError
		if errors.As(err, &dbErr) && dbErr.Kind == shared.DbModelNotFound {
			return store.User{}, shared.NewUserNotFound(id)
		}
		return store.User{}, err
	}
	return u, nil
}

func (s *Service) openSession(ctx context.Context, userID uuid.UUID) (Session, error) {
	access, accessExp, err := s.tokens.Issue(userID)
	if err != nil {
		return Session{}, err
	}
	rt, err := s.refresh.Create(ctx, userID, s.now().Add(s.refreshTTL), clientFrom(ctx))
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rt.ID,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}
