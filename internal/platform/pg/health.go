package pg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ifiokjr/verily/pkg/retry"
)

// HealthCheckOptions configures WaitForDB.
type HealthCheckOptions struct {
	// MaxAttempts of 0 keeps trying until ctx is done.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	PingTimeout     time.Duration
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultHealthCheckOptions waits up to ten attempts with jittered
// exponential backoff from 1s to 30s.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxAttempts:     10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB blocks until the server behind dsn accepts a connection, the
// attempt budget is spent, or ctx is done. Failures that waiting cannot
// fix, such as a malformed DSN, rejected credentials or an unknown
// database, are returned after the first attempt.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	cfg := retry.Config{
		MaxAttempts:    opts.MaxAttempts,
		InitialDelay:   opts.InitialInterval,
		MaxDelay:       opts.MaxInterval,
		Multiplier:     2,
		JitterStrategy: retry.JitterFull,
		OnRetry:        opts.OnRetry,
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = math.MaxInt
	}

	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		return ping(ctx, dsn, opts.PingTimeout)
	}, worthWaiting)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("wait for database: %w", err)
	}
	return fmt.Errorf("database not available: %w", err)
}

func ping(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return conn.Ping(ctx)
}

// worthWaiting reports whether err may go away while the server starts.
func worthWaiting(err error) bool {
	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01", "3D000": // invalid authorization, invalid password, unknown database
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}
