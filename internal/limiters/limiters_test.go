package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/finauth/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T) (*rate.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rate.New(rdb, "test"), mr
}

func TestResendCooldownBlocksInsideWindow(t *testing.T) {
	rl, _ := newTestLimiter(t)
	c := NewResendCooldown(rl, 5*time.Minute)
	ctx := context.Background()

	if _, err := c.Acquire(ctx, "u-1", testNow); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	left, err := c.Acquire(ctx, "u-1", testNow.Add(time.Minute))
	if !errors.Is(err, ErrVerificationCooldown) {
		t.Fatalf("expected ErrVerificationCooldown, got %v", err)
	}
	if left != 4*time.Minute {
		t.Fatalf("expected 4m left, got %v", left)
	}
	if _, err := c.Acquire(ctx, "u-2", testNow); err != nil {
		t.Fatalf("other user must not share the slot: %v", err)
	}

	// One millisecond short of the window is still inside it.
	if _, err := c.Acquire(ctx, "u-1", testNow.Add(5*time.Minute-time.Millisecond)); !errors.Is(err, ErrVerificationCooldown) {
		t.Fatalf("expected cooldown just before the window ends, got %v", err)
	}
	if _, err := c.Acquire(ctx, "u-1", testNow.Add(5*time.Minute)); err != nil {
		t.Fatalf("expected slot to be free after window: %v", err)
	}
	if _, err := c.Acquire(ctx, "u-1", testNow.Add(6*time.Minute)); !errors.Is(err, ErrVerificationCooldown) {
		t.Fatalf("expected the reclaimed slot to hold, got %v", err)
	}
}

func TestResendCooldownRelease(t *testing.T) {
	rl, _ := newTestLimiter(t)
	c := NewResendCooldown(rl, time.Minute)
	ctx := context.Background()

	if _, err := c.Acquire(ctx, "u-1", testNow); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.Release(ctx, "u-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := c.Acquire(ctx, "u-1", testNow); err != nil {
		t.Fatalf("expected acquire after release: %v", err)
	}
}

func TestResendCooldownUnavailable(t *testing.T) {
	rl, mr := newTestLimiter(t)
	c := NewResendCooldown(rl, time.Minute)
	mr.Close()

	if _, err := c.Acquire(context.Background(), "u-1", testNow); !errors.Is(err, ErrVerificationLimiterUnavailable) {
		t.Fatalf("expected ErrVerificationLimiterUnavailable, got %v", err)
	}
}

func TestPasswordResetLimiterWindow(t *testing.T) {
	rl, _ := newTestLimiter(t)
	l := NewPasswordResetLimiter(rl, PasswordResetConfig{MaxRequests: 5, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.AllowRequest(ctx, "a@x.io", testNow.Add(time.Duration(i)*time.Minute))
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := l.AllowRequest(ctx, "a@x.io", testNow.Add(14*time.Minute))
	if err != nil {
		t.Fatalf("sixth request: %v", err)
	}
	if ok {
		t.Fatal("expected sixth request to be throttled")
	}

	if ok, _ := l.AllowRequest(ctx, "b@x.io", testNow); !ok {
		t.Fatal("other emails must not share the window")
	}
	if ok, _ := l.AllowRequest(ctx, "a@x.io", testNow.Add(15*time.Minute)); !ok {
		t.Fatal("expected new window to allow")
	}
}

func TestNilLimitersAllow(t *testing.T) {
	var c *ResendCooldown
	if _, err := c.Acquire(context.Background(), "u", testNow); err != nil {
		t.Fatalf("nil cooldown: %v", err)
	}
	var l *PasswordResetLimiter
	if ok, err := l.AllowRequest(context.Background(), "a", testNow); !ok || err != nil {
		t.Fatalf("nil reset limiter: ok=%v err=%v", ok, err)
	}
}
