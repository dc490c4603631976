package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/finauth/internal/rate"
)

var ErrResetLimiterUnavailable = errors.New("reset limiter unavailable")

type PasswordResetConfig struct {
	MaxRequests int
	Window      time.Duration
}

// PasswordResetLimiter caps reset requests per email address.
type PasswordResetLimiter struct {
	limiter *rate.Limiter
	config  PasswordResetConfig
}

func NewPasswordResetLimiter(limiter *rate.Limiter, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{limiter: limiter, config: cfg}
}

// AllowRequest counts one request for email and reports whether it fits the budget.
func (l *PasswordResetLimiter) AllowRequest(ctx context.Context, email string, now time.Time) (bool, error) {
	if l == nil || l.limiter == nil || l.config.MaxRequests <= 0 {
		return true, nil
	}
	d, err := l.limiter.Hit(ctx, resetRequestKey(email), now, l.config.MaxRequests, l.config.Window)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrResetLimiterUnavailable, err)
	}
	return d.Allowed, nil
}

func resetRequestKey(email string) string {
	return "reset-request:" + email
}
