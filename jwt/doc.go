// Package jwt issues and verifies short-lived access tokens carrying the
// subject (user id) and the session id, using configured signing keys and
// strict validation semantics suitable for low-latency authentication paths.
package jwt
