package mail

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limits the send rate of an underlying mailer with a token bucket.
// Send blocks until a token is available or ctx is done.
type Throttled struct {
	next    Mailer
	limiter *rate.Limiter
}

// NewThrottled allows perSecond sends per second with the given burst.
func NewThrottled(next Mailer, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("mail throttle: %w", err)
	}
	return t.next.Send(ctx, msg)
}
