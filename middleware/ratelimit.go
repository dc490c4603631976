package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle allows Limit requests per Window for one client.
type Throttle struct {
	Limit  int
	Window time.Duration
}

func (t Throttle) rate() rate.Limit {
	if t.Limit <= 0 || t.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(t.Limit) / t.Window.Seconds())
}

// retryAfter is the time one token takes to refill, rounded up to a second.
func (t Throttle) retryAfter() int {
	if t.Limit <= 0 || t.Window <= 0 {
		return 1
	}
	sec := int(math.Ceil(t.Window.Seconds() / float64(t.Limit)))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// RateLimiterConfig configures [RateLimiter].
type RateLimiterConfig struct {
	// CleanupInterval drops limiters idle for twice this long.
	CleanupInterval time.Duration
	// OnLimit, when set, is called for every rejected request.
	OnLimit func(r *http.Request, scope string)
}

// DefaultRateLimiterConfig returns a five-minute cleanup and no hook.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{CleanupInterval: 5 * time.Minute}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per (scope, client IP). Scopes are
// independent, so hitting the sign-in throttle does not affect sign-up.
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.RWMutex
	limiters map[string]map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter starts the background cleanup; call Stop when done.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware enforces t on scope, keyed by the client IP from [ClientMeta]
// (RemoteAddr when ClientMeta did not run).
func (rl *RateLimiter) Middleware(scope string, t Throttle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFromContext(r.Context())
			if ip == "" {
				ip = remoteHost(r)
			}

			if !rl.limiter(scope, ip, t).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("ip", ip),
				)
				if rl.config.OnLimit != nil {
					rl.config.OnLimit(r, scope)
				}
				writeRateLimitResponse(w, t.retryAfter())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount reports how many clients are tracked for scope.
func (rl *RateLimiter) LimiterCount(scope string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters[scope])
}

func (rl *RateLimiter) limiter(scope, ip string, t Throttle) *rate.Limiter {
	now := time.Now()

	rl.mu.RLock()
	cl, ok := rl.limiters[scope][ip]
	rl.mu.RUnlock()

	if ok {
		rl.mu.Lock()
		cl.lastAccess = now
		rl.mu.Unlock()
		return cl.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	byIP := rl.limiters[scope]
	if byIP == nil {
		byIP = make(map[string]*clientLimiter)
		rl.limiters[scope] = byIP
	}
	if cl, ok := byIP[ip]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	l := rate.NewLimiter(t.rate(), max(t.Limit, 1))
	byIP[ip] = &clientLimiter{limiter: l, lastAccess: now}
	return l
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for scope, byIP := range rl.limiters {
		for ip, cl := range byIP {
			if now.Sub(cl.lastAccess) > ttl {
				delete(byIP, ip)
			}
		}
		if len(byIP) == 0 {
			delete(rl.limiters, scope)
		}
	}
}

func writeRateLimitResponse(w http.ResponseWriter, retryAfterSec int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteError(w, http.StatusTooManyRequests, "too many requests")
}
