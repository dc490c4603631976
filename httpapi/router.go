package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/middleware"
	"github.com/go-chi/chi/v5"
)

// Throttles holds the per-IP limits of the public auth routes.
type Throttles struct {
	SignUp       middleware.Throttle
	SignIn       middleware.Throttle
	Verify       middleware.Throttle
	VerifyToken  middleware.Throttle
	VerifyResend middleware.Throttle
	Forgot       middleware.Throttle
	Reset        middleware.Throttle
}

// DefaultThrottles returns the production limits.
func DefaultThrottles() Throttles {
	return Throttles{
		SignUp:       middleware.Throttle{Limit: 5, Window: 300 * time.Second},
		SignIn:       middleware.Throttle{Limit: 10, Window: 60 * time.Second},
		Verify:       middleware.Throttle{Limit: 1, Window: 60 * time.Second},
		VerifyToken:  middleware.Throttle{Limit: 3, Window: 300 * time.Second},
		VerifyResend: middleware.Throttle{Limit: 1, Window: 60 * time.Second},
		Forgot:       middleware.Throttle{Limit: 5, Window: 900 * time.Second},
		Reset:        middleware.Throttle{Limit: 5, Window: 300 * time.Second},
	}
}

// RouterDeps collects what [NewRouter] wires together.
type RouterDeps struct {
	Engine *finauth.Engine
	Logger *slog.Logger

	// RateLimiter is owned by the caller, who must Stop it. Nil disables
	// every throttle.
	RateLimiter *middleware.RateLimiter
	Throttles   Throttles

	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool

	// Metrics is mounted on GET /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the auth API.
//
// Middleware order: Recover → Logging → ClientMeta, then per-route throttles
// and, on authenticated routes, Guard.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{engine: deps.Engine, logger: logger}

	throttle := func(scope string, t middleware.Throttle) func(http.Handler) http.Handler {
		if deps.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return deps.RateLimiter.Middleware(scope, t)
	}
	guard := middleware.Guard(deps.Engine)
	tr := deps.Throttles

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ClientMeta(deps.TrustProxy))

	r.Get("/healthz", h.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(throttle("signup", tr.SignUp)).Post("/signup", h.SignUp)
		r.With(throttle("signup", tr.SignUp)).Post("/register", h.Register)
		r.With(throttle("signin", tr.SignIn)).Post("/signin", h.SignIn)
		r.Post("/refresh", h.Refresh)
		r.With(throttle("verify-email", tr.VerifyToken)).Get("/verify-email", h.VerifyEmailToken)
		r.With(throttle("forgot", tr.Forgot)).Post("/forgot", h.ForgotPassword)
		r.With(throttle("reset", tr.Reset)).Post("/reset", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(guard)

			r.With(throttle("verify", tr.Verify)).Post("/verify", h.VerifyEmail)
			r.With(throttle("verify-resend", tr.VerifyResend)).Post("/verify/resend", h.ResendVerification)
			r.With(throttle("verify-resend", tr.VerifyResend)).Post("/resend-verification", h.ResendVerification)
			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions/{id}", h.RevokeSession)
			r.Post("/signout", h.SignOut)
			r.Get("/me", h.Me)
		})
	})

	return r
}

// RateLimitHook returns a [middleware.RateLimiterConfig] OnLimit callback
// that records throttled requests on engine.
func RateLimitHook(engine *finauth.Engine) func(*http.Request, string) {
	return func(r *http.Request, scope string) {
		engine.RecordRateLimit(context.WithoutCancel(r.Context()), scope)
	}
}
