package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/finauth/internal/rate"
)

var (
	ErrVerificationCooldown           = errors.New("verification resend cooldown active")
	ErrVerificationLimiterUnavailable = errors.New("verification limiter unavailable")
)

// ResendCooldown allows one verification email per user per window.
type ResendCooldown struct {
	limiter *rate.Limiter
	window  time.Duration
}

func NewResendCooldown(limiter *rate.Limiter, window time.Duration) *ResendCooldown {
	return &ResendCooldown{limiter: limiter, window: window}
}

// Acquire claims the user's slot at now. It returns ErrVerificationCooldown
// and the time left when a send already happened inside the window.
func (c *ResendCooldown) Acquire(ctx context.Context, userID string, now time.Time) (time.Duration, error) {
	if c == nil || c.limiter == nil {
		return 0, nil
	}
	left, err := c.limiter.Acquire(ctx, resendKey(userID), now, c.window)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, rate.ErrRateLimited):
		return left, ErrVerificationCooldown
	default:
		return 0, fmt.Errorf("%w: %v", ErrVerificationLimiterUnavailable, err)
	}
}

// Release frees the slot when nothing was sent.
func (c *ResendCooldown) Release(ctx context.Context, userID string) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	if err := c.limiter.Release(ctx, resendKey(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationLimiterUnavailable, err)
	}
	return nil
}

func (c *ResendCooldown) Window() time.Duration {
	if c == nil {
		return 0
	}
	return c.window
}

func resendKey(userID string) string {
	return "verify-resend:" + userID
}
