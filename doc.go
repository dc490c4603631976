// Package finauth is the authentication and session lifecycle core of the
// finance dashboard.
//
// It covers sign-up (with a household per new user), sign-in, rotating
// refresh tokens with reuse detection, email verification, password reset
// and per-device session management. Access tokens are short-lived JWTs
// carrying the user and session ids; refresh, verification and reset tokens
// are opaque "{id}.{secret}" strings whose secret half is stored hashed.
//
// An [Engine] is assembled once through [Builder] and is safe for concurrent
// use. Persistence goes through the transactional store in package store;
// mail delivery through package mail.
//
// # Architecture boundaries
//
// finauth is the public surface: [Engine], [Builder], [Config] and plain
// result structs. Flow orchestration, rate limiting and audit dispatch live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store records or password hashes in its results.
//   - Let a mail failure fail a request.
//   - Import any sub-package that re-imports finauth.
package finauth
