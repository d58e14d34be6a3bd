// Package auth issues and checks credentials. Access tokens are HS256
// JWTs carrying the user id as subject; refresh tokens are opaque ids
// stored in the database and rotated on every use.
//
// Every failure is an application error from the token lifecycle family
// (access_token_*, refresh_token_*) so clients can tell "log in again"
// apart from failures worth retrying.
package auth
