package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ifiokjr/verily/internal/platform/database"
	"github.com/ifiokjr/verily/internal/shared"
)

// User is an account row.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Users reads and writes the users table.
type Users struct {
	db  database.Handle
	now func() time.Time
}

// NewUsers returns a repository over h.
func NewUsers(h database.Handle) *Users {
	return &Users{db: h, now: time.Now}
}

// Create inserts a user. A taken username is UsernameNotAvailable.
func (r *Users) Create(ctx context.Context, username, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC().Truncate(time.Microsecond),
	}
	_, err := r.db.Querier(ctx).ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return User{}, shared.NewUsernameNotAvailable(username)
		}
		return User{}, database.Classify(err)
	}
	return u, nil
}

const selectUser = `SELECT id, username, password_hash, created_at, deleted_at FROM users`

// Get loads a live user by id. A deleted user is AlreadyDeleted; an
// unknown id is a model_not_found storage error.
func (r *Users) Get(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.db.Querier(ctx).QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
	if err != nil {
		return User{}, database.NotFoundAs(err, "user", id.String())
	}
	if u.DeletedAt != nil {
		return User{}, shared.NewAlreadyDeleted("user", id)
	}
	return u, nil
}

// GetByUsername loads a live user by username. An unknown or deleted
// username is UsernameNotAssociatedWithActor.
func (r *Users) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.db.Querier(ctx).QueryRowContext(ctx,
		selectUser+` WHERE username = $1 AND deleted_at IS NULL`, username))
	if err != nil {
		if dbErr := database.Classify(err); dbErr.Kind == shared.DbNotFound {
			return User{}, shared.NewUsernameNotAssociatedWithActor(username)
		}
		return User{}, database.Classify(err)
	}
	return u, nil
}

// Delete soft-deletes a user.
func (r *Users) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	_, err := r.db.Querier(ctx).ExecContext(ctx,
		`UPDATE users SET deleted_at = $1 WHERE id = $2`, r.now().UTC(), id)
	if err != nil {
		return database.Classify(err)
	}
	return nil
}

func scanUser(row *sql.Row) (User, error) {
	var (
		u       User
		deleted sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &deleted); err != nil {
		return User{}, err
	}
	if deleted.Valid {
		u.DeletedAt = &deleted.Time
	}
	return u, nil
}
