// Package middleware holds the net/http adapters that sit in front of
// finauth.Engine.
//
// # Middleware
//
//   - [Guard] authenticates the bearer access token through Engine.Authenticate
//     and stores the [finauth.Principal] on the request context.
//   - [ClientMeta] records client IP and User-Agent for session metadata.
//   - [RateLimiter] applies per-IP token buckets, one set per route scope.
//   - [Logging] and [Recover] provide request logs and panic recovery.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs (the engine does).
//   - Touch Redis or the record store.
//   - Decide anything beyond pass or reject.
package middleware
