package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxAcquireAttempts = 3

// Decision is the outcome of one fixed-window hit.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Limiter provides Redis-backed fixed-window counters and cooldown slots.
// Keys are namespaced by prefix.
//
// Windows and slots are measured against the caller's now, so they follow
// the engine clock. Redis TTLs only garbage-collect the keys.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "finauth"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Hit counts one event for key in the window of the given length that
// contains now, and reports whether the count is still within max. Windows
// are aligned to the Unix epoch.
func (l *Limiter) Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{Allowed: true}, nil
	}
	bucket := now.UnixMilli() / window.Milliseconds()
	full := l.key(key) + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.incrementWithTTL(ctx, full, window)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: count <= int64(max), Count: count}
	if !d.Allowed {
		end := time.UnixMilli((bucket + 1) * window.Milliseconds())
		d.RetryAfter = end.Sub(now)
	}
	return d, nil
}

// Acquire claims the cooldown slot for key until now+ttl. When the slot is
// still held at now it returns [ErrRateLimited] and the time left on it.
func (l *Limiter) Acquire(ctx context.Context, key string, now time.Time, ttl time.Duration) (time.Duration, error) {
	full := l.key(key)
	until := now.Add(ttl).UnixMilli()

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		var left time.Duration
		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			held, err := tx.Get(ctx, full).Int64()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if d := time.UnixMilli(held).Sub(now); d > 0 {
					left = d
					return nil
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, full, until, ttl)
				return nil
			})
			return err
		}, full)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case err != nil:
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		case left > 0:
			return left, ErrRateLimited
		default:
			return 0, nil
		}
	}
	// Every attempt lost to a concurrent claim of the same slot.
	return ttl, ErrRateLimited
}

// Release frees a cooldown slot early.
func (l *Limiter) Release(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(key string) string {
	return l.prefix + ":rl:" + key
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// The bucket key only needs to outlive its window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
