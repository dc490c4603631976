// Package httpapi exposes finauth.Engine over HTTP with a chi router.
//
// Public routes carry per-IP throttles; session routes sit behind
// middleware.Guard. Every error body is {"error": message} with the status
// derived from finauth.KindOf. Refresh failures all read
// "invalid refresh token" so callers cannot tell reuse from expiry.
package httpapi
