package rate

import "errors"

var (
	// ErrRateLimited is returned when a window is exhausted or a cooldown slot is held.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
