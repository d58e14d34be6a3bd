package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/platform/crypto"
	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/shared"
)

var errNoCipher = errors.New("refresh token client is sealed but no encryption key is configured")

// RefreshToken is a stored refresh token. The ID is the opaque value
// handed to the client. Client describes the device that opened the
// session; it is kept sealed at rest and is empty when no cipher is
// configured.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	RevokedAt *time.Time
	Client    string
}

// RefreshTokens reads and writes the refresh_tokens table.
type RefreshTokens struct {
	db     database.Handle
	cipher *crypto.Cipher
}

// RefreshTokensOption customizes a RefreshTokens repository.
type RefreshTokensOption func(*RefreshTokens)

// WithCipher seals the client description of every new token with c.
// Without a cipher the description is not stored.
func WithCipher(c *crypto.Cipher) RefreshTokensOption {
	return func(r *RefreshTokens) { r.cipher = c }
}

// NewRefreshTokens returns a repository over h.
func NewRefreshTokens(h database.Handle, opts ...RefreshTokensOption) *RefreshTokens {
	r := &RefreshTokens{db: h}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new token for userID opened by client.
func (r *RefreshTokens) Create(ctx context.Context, userID uuid.UUID, expiresAt time.Time, client string) (RefreshToken, error) {
	t := RefreshToken{ID: uuid.New(), UserID: userID, ExpiresAt: expiresAt.UTC().Truncate(time.Microsecond)}

	var sealed any
	if r.cipher != nil && client != "" {
		b, err := r.cipher.Seal([]byte(client), t.ID[:])
		if err != nil {
			return RefreshToken{}, err
		}
		sealed = b
		t.Client = client
	}

	_, err := r.db.Querier(ctx).ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, expires_at, client) VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, t.ExpiresAt, sealed)
	if err != nil {
		return RefreshToken{}, database.Classify(err)
	}
	return t, nil
}

const selectRefreshToken = `SELECT id, user_id, expires_at, revoked_at, client FROM refresh_tokens`

// Get loads a token by id. An unknown id is a model_not_found storage
// error; a client description that cannot be opened is an encryption
// error.
func (r *RefreshTokens) Get(ctx context.Context, id uuid.UUID) (RefreshToken, error) {
	t, err := r.scan(r.db.Querier(ctx).QueryRowContext(ctx, selectRefreshToken+` WHERE id = $1`, id))
	if err != nil {
		return RefreshToken{}, database.NotFoundAs(err, "refresh_token", id.String())
	}
	return t, nil
}

// Live lists the tokens of userID that are neither revoked nor expired at
// now, latest expiry first.
func (r *RefreshTokens) Live(ctx context.Context, userID uuid.UUID, now time.Time) ([]RefreshToken, error) {
	rows, err := r.db.Querier(ctx).QueryContext(ctx,
		selectRefreshToken+` WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 ORDER BY expires_at DESC`,
		userID, now.UTC())
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var out []RefreshToken
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, database.Classify(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *RefreshTokens) scan(row scanner) (RefreshToken, error) {
	var (
		t       RefreshToken
		revoked sql.NullTime
		sealed  []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.ExpiresAt, &revoked, &sealed); err != nil {
		return RefreshToken{}, err
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	if len(sealed) > 0 {
		if r.cipher == nil {
			return RefreshToken{}, shared.DbEncryptionError(errNoCipher)
		}
		client, err := r.cipher.Open(sealed, t.ID[:])
		if err != nil {
			return RefreshToken{}, err
		}
		t.Client = string(client)
	}
	return t, nil
}

// Revoke marks a live token revoked at the given time. It reports false
// when the token was already revoked or does not exist.
func (r *RefreshTokens) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Classify(err)
	}
	return n == 1, nil
}

// RevokeAll revokes every live token of userID and returns how many were
// revoked.
func (r *RefreshTokens) RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		at.UTC(), userID)
	if err != nil {
		return 0, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(err)
	}
	return n, nil
}

// PurgeExpired deletes tokens that expired or were revoked before cutoff
// and returns how many were removed.
func (r *RefreshTokens) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	res, err := r.db.Querier(ctx).ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $2)`,
		cutoff, cutoff)
	if err != nil {
		return 0, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Classify(err)
	}
	return n, nil
}
