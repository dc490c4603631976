package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/finauth/store"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "finauth"
	defaultMaxRetries = 16
	defaultRetention  = 24 * time.Hour
)

// Options tunes a [Store].
type Options struct {
	// Prefix namespaces every key. Defaults to "finauth".
	Prefix string
	// MaxRetries bounds how many times RunInTx re-runs a function whose
	// EXEC was aborted by a concurrent writer. Defaults to 16.
	MaxRetries int
	// Retention is how long token records outlive their expiry so that a
	// late presentation is still recognised. Defaults to 24h.
	Retention time.Duration
}

// Store is a [store.Store] on Redis.
//
// Each RunInTx call runs on one connection: reads WATCH the key they read,
// writes are buffered (and visible to later reads in the same call), and
// the buffer is applied with a single MULTI/EXEC. If any watched key changed
// in between, EXEC aborts and the whole function runs again.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	retention  time.Duration
}

// New wraps client. The client is not closed by [Store.Close].
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &Store{
		client:     client,
		prefix:     opts.Prefix,
		maxRetries: opts.MaxRetries,
		retention:  opts.Retention,
	}
}

// RunInTx implements [store.Store].
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := newTx(s, rtx)
			if err := fn(ctx, t); err != nil {
				fnErr = err
				return err
			}
			return t.commit(ctx)
		})
		if fnErr != nil {
			return fnErr
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return unavailable(err)
	}
	return store.ErrTxAborted
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close is a no-op; the caller owns the client.
func (s *Store) Close() error {
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func (s *Store) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) householdKey(id string) string {
	return s.prefix + ":household:" + id
}

func (s *Store) householdMembersKey(id string) string {
	return s.prefix + ":household:" + id + ":members"
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + ":session:" + id
}

func (s *Store) userSessionsKey(userID string) string {
	return s.prefix + ":user:" + userID + ":sessions"
}

func (s *Store) refreshKey(id string) string {
	return s.prefix + ":rt:" + id
}

func (s *Store) sessionRefreshKey(sessionID string) string {
	return s.prefix + ":session:" + sessionID + ":rts"
}

func (s *Store) singleUseKey(id string) string {
	return s.prefix + ":sut:" + id
}

func (s *Store) userSingleUseKey(userID string, purpose store.Purpose) string {
	return s.prefix + ":user:" + userID + ":sut:" + string(purpose)
}

// tokenTTL keeps a token record around for the retention window past its
// own lifetime. It is relative so clock skew between the caller and Redis
// does not matter.
func (s *Store) tokenTTL(createdAt, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(createdAt)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + s.retention
}
