// Package crypto wraps the primitives the server needs for credentials:
// bcrypt password hashes, XChaCha20-Poly1305 sealing of stored secrets
// and ed25519 signing keys. Every failure is a *shared.DbError of kind
// password_hash, encryption or keypair so it flows through the same error
// classification as storage failures.
package crypto
