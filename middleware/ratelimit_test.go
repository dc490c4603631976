package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	h := rl.Middleware("signin", Throttle{Limit: 3, Window: time.Minute})(okHandler())
	for i := 0; i < 3; i++ {
		if rec := doFrom(h, "192.0.2.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := doFrom(h, "192.0.2.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "20" {
		t.Fatalf("expected Retry-After 20, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "too many requests") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestRateLimiterKeysByIPAndScope(t *testing.T) {
	var hits []string
	rl := NewRateLimiter(RateLimiterConfig{
		CleanupInterval: time.Minute,
		OnLimit:         func(_ *http.Request, scope string) { hits = append(hits, scope) },
	})
	defer rl.Stop()

	one := Throttle{Limit: 1, Window: time.Minute}
	signin := rl.Middleware("signin", one)(okHandler())
	signup := rl.Middleware("signup", one)(okHandler())

	if rec := doFrom(signin, "192.0.2.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("expected first signin to pass, got %d", rec.Code)
	}
	if rec := doFrom(signin, "192.0.2.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("expected other IP to pass, got %d", rec.Code)
	}
	if rec := doFrom(signup, "192.0.2.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("expected other scope to pass, got %d", rec.Code)
	}
	if rec := doFrom(signin, "192.0.2.1:9"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected same IP on a new port to be limited, got %d", rec.Code)
	}

	if len(hits) != 1 || hits[0] != "signin" {
		t.Fatalf("expected one signin hook call, got %v", hits)
	}
	if n := rl.LimiterCount("signin"); n != 2 {
		t.Fatalf("expected 2 signin limiters, got %d", n)
	}
}

func TestRateLimiterUsesClientMetaIP(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	h := ClientMeta(true)(rl.Middleware("forgot", Throttle{Limit: 1, Window: 15 * time.Minute})(okHandler()))

	send := func(fwd string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/forgot", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.5"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send("203.0.113.6, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected distinct forwarded client to pass, got %d", code)
	}
	if code := send("203.0.113.5"); code != http.StatusTooManyRequests {
		t.Fatalf("expected repeat client to be limited, got %d", code)
	}
}

func TestRateLimiterCleanupDropsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{CleanupInterval: time.Hour})
	defer rl.Stop()

	doFrom(rl.Middleware("reset", Throttle{Limit: 5, Window: 5 * time.Minute})(okHandler()), "192.0.2.9:1")
	if n := rl.LimiterCount("reset"); n != 1 {
		t.Fatalf("expected 1 limiter, got %d", n)
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if n := rl.LimiterCount("reset"); n != 0 {
		t.Fatalf("expected idle limiter to be dropped, got %d", n)
	}
	rl.Stop()
}
