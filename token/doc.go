// Package token implements the opaque two-part token format shared by refresh
// tokens and single-use (email verification, password reset) tokens.
//
// A token is "{id}.{secret}". The id locates a stored record; the secret is
// only ever persisted as a one-way hash produced by a password.Hasher.
//
// # What this package must NOT do
//
//   - Authenticate secrets (callers verify against the stored hash).
//   - Log or persist raw secrets.
package token
