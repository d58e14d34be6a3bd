// Package shared contains the error taxonomy shared by the server and its
// clients, and the helpers used to classify and collapse errors at the
// service boundary.
//
// # Two tiers
//
// DbError classifies storage-layer failures (driver, pool, migrations,
// hashing, encryption). AppError is the only error type that crosses the
// service boundary; a DbError reaches a client only wrapped in the Db
// variant of AppError.
//
// Each AppError variant is identified by a Kind with a stable snake_case
// discriminant. The same discriminant is used by the JSON wire form:
//
//	{"type":"not_found","name":"user","id":"6f1c…"}
//	{"type":"db","error":{"type":"model_not_found","model":"user","id":"42"}}
//	{"type":"validation","errors":{"email":[{"code":"email"}]}}
//
// # Classification
//
// Kind carries the classification used by handlers and clients:
//
//	if appErr, ok := shared.AsAppError(err); ok && appErr.IsAuthError() {
//	    // send the user back to sign-in
//	}
//
//	err := retry.DoWithRetryable(ctx, cfg, call, shared.IsRetryable)
//
// IsAuthError holds exactly for the six token lifecycle kinds and
// IsRetryable is its negation.
//
// # Sensitivity
//
// Conversions from third-party errors come in two classes. JSON, serde,
// request, validation and server function failures describe the shape of
// the exchange and are always exposed. Generic, JWT, WebAuthn and storage
// failures can leak internals, so they are exposed only when the Policy
// allows it and collapse to Hidden otherwise:
//
//	policy := shared.ClientPolicy(cfg.IsDev())
//	body := shared.Classify(err).Redact(policy)
//
// DefaultPolicy is fixed at build time. Server builds are trusted; builds
// tagged verily_client are not, unless also tagged dev.
//
// # Wrapping
//
// Wrap and Wrapf add context while keeping the chain intact, so
// errors.Is, errors.As and Classify still see the original error:
//
//	if err := repo.Save(ctx, u); err != nil {
//	    return shared.Wrap(err, "save user")
//	}
package shared
