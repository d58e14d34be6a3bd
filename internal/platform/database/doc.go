// Package database provides the Handle shared by every request: a cheap
// value wrapping one connection pool, plus caller-scoped transactions.
//
// A Handle is opened once at startup and published into each request's
// context by the HTTP layer:
//
//	h, err := database.TryNew(ctx, cfg.DatabaseURL)
//	...
//	ctx = database.WithHandle(ctx, h)
//
// Handlers retrieve it explicitly; a request without a handle fails with
// the missing_context storage error instead of panicking:
//
//	h, err := database.FromContext(ctx)
//	if err != nil {
//		return err
//	}
//	err = h.WithinTx(ctx, func(ctx context.Context) error {
//		_, err := h.Querier(ctx).ExecContext(ctx, `UPDATE users SET username = $1 WHERE id = $2`, name, id)
//		return err
//	})
//
// Copying a Handle shares the pool. A Tx belongs to the goroutine that
// opened it; cancelling the context it was opened with rolls it back.
// Failures produced by this package are *shared.DbError values; errors
// returned by a WithinTx callback are passed through unchanged.
package database
