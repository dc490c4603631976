package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/finauth/store"
	"github.com/redis/go-redis/v9"
)

type writeOp func(ctx context.Context, pipe redis.Pipeliner)

type tx struct {
	s   *Store
	rtx *redis.Tx

	watched  map[string]struct{}
	values   map[string][]byte
	setAdds  map[string]map[string]struct{}
	setRems  map[string]map[string]struct{}
	hashSets map[string]map[string]string
	ops      []writeOp
}

func newTx(s *Store, rtx *redis.Tx) *tx {
	return &tx{
		s:        s,
		rtx:      rtx,
		watched:  make(map[string]struct{}),
		values:   make(map[string][]byte),
		setAdds:  make(map[string]map[string]struct{}),
		setRems:  make(map[string]map[string]struct{}),
		hashSets: make(map[string]map[string]string),
	}
}

func (t *tx) Users() store.UserRepo                     { return userRepo{t} }
func (t *tx) Households() store.HouseholdRepo           { return householdRepo{t} }
func (t *tx) Sessions() store.SessionRepo               { return sessionRepo{t} }
func (t *tx) RefreshTokens() store.RefreshTokenRepo     { return refreshRepo{t} }
func (t *tx) SingleUseTokens() store.SingleUseTokenRepo { return singleUseRepo{t} }

func (t *tx) commit(ctx context.Context) error {
	if len(t.ops) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range t.ops {
			op(ctx, pipe)
		}
		return nil
	})
	return err
}

func (t *tx) watch(ctx context.Context, key string) error {
	if _, ok := t.watched[key]; ok {
		return nil
	}
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	t.watched[key] = struct{}{}
	return nil
}

func (t *tx) getJSON(ctx context.Context, key string, v any) error {
	if b, ok := t.values[key]; ok {
		return json.Unmarshal(b, v)
	}
	if err := t.watch(ctx, key); err != nil {
		return err
	}
	b, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return json.Unmarshal(b, v)
}

func (t *tx) getString(ctx context.Context, key string) (string, error) {
	if b, ok := t.values[key]; ok {
		return string(b), nil
	}
	if err := t.watch(ctx, key); err != nil {
		return "", err
	}
	v, err := t.rtx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return v, nil
}

// putJSON buffers a SET. ttl > 0 sets an expiry; ttl == 0 keeps the current
// one; ttl < 0 stores the key without expiry.
func (t *tx) putJSON(key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.putRaw(key, b, ttl)
	return nil
}

func (t *tx) putRaw(key string, b []byte, ttl time.Duration) {
	t.values[key] = b
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		switch {
		case ttl > 0:
			pipe.Set(ctx, key, b, ttl)
		case ttl == 0:
			pipe.SetArgs(ctx, key, b, redis.SetArgs{KeepTTL: true})
		default:
			pipe.Set(ctx, key, b, 0)
		}
	})
}

func (t *tx) members(ctx context.Context, key string) ([]string, error) {
	if err := t.watch(ctx, key); err != nil {
		return nil, err
	}
	stored, err := t.rtx.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	seen := make(map[string]struct{}, len(stored))
	out := make([]string, 0, len(stored))
	for _, m := range stored {
		if _, removed := t.setRems[key][m]; removed {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	for m := range t.setAdds[key] {
		if _, ok := seen[m]; !ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) addMember(key, member string) {
	if t.setAdds[key] == nil {
		t.setAdds[key] = make(map[string]struct{})
	}
	t.setAdds[key][member] = struct{}{}
	delete(t.setRems[key], member)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, key, member)
	})
}

func (t *tx) removeMember(key, member string) {
	if t.setRems[key] == nil {
		t.setRems[key] = make(map[string]struct{})
	}
	t.setRems[key][member] = struct{}{}
	delete(t.setAdds[key], member)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, key, member)
	})
}

func (t *tx) exists(ctx context.Context, key string) (bool, error) {
	if _, ok := t.values[key]; ok {
		return true, nil
	}
	if err := t.watch(ctx, key); err != nil {
		return false, err
	}
	n, err := t.rtx.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (t *tx) hset(key, field, value string) {
	if t.hashSets[key] == nil {
		t.hashSets[key] = make(map[string]string)
	}
	t.hashSets[key][field] = value
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, field, value)
	})
}

func (t *tx) hgetall(ctx context.Context, key string) (map[string]string, error) {
	if err := t.watch(ctx, key); err != nil {
		return nil, err
	}
	out, err := t.rtx.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	if out == nil {
		out = make(map[string]string)
	}
	for f, v := range t.hashSets[key] {
		out[f] = v
	}
	return out, nil
}
