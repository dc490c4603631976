// Package rate provides the Redis primitives behind finauth's request
// throttles and cooldowns.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit.
// Cooldown slots: SET NX PX; the slot is free again once the key expires.
// All keys live under <prefix>:rl:.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the finauth module.
package rate
