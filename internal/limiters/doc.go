// Package limiters provides domain-specific rate limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [ResendCooldown]: one verification email per user per window (SET NX PX).
//   - [PasswordResetLimiter]: fixed-window cap on reset requests per email.
//
// All limiters are nil-safe: calling any method on a nil receiver allows the call.
//
// # What this package must NOT do
//
//   - Import finauth or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
