// Package retry runs an operation with exponential backoff.
//
// Basic usage:
//
//	err := retry.Retry(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx, "hello_world", nil, &out)
//	})
//
// Errors that implement IsRetryable() bool decide for themselves whether a
// retry makes sense, so an expired access token returned by a server
// function stops the loop at once while a dropped connection is retried:
//
//	cfg := retry.DefaultConfig()
//	cfg.MaxAttempts = 5
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    log.Warn("retrying", "attempt", attempt, "delay", delay, "error", err)
//	}
//	err := retry.Do(ctx, cfg, fn)
//
// DoWithRetryable takes a custom predicate; the database package uses it to
// retry SQLite transactions that hit a locked database.
package retry
