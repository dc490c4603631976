package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/finauth"
	"github.com/MrEthical07/finauth/mail"
	"github.com/MrEthical07/finauth/middleware"
	"github.com/MrEthical07/finauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type nopMailer struct{}

func (nopMailer) Send(context.Context, mail.Message) (mail.Receipt, error) {
	return mail.Receipt{Delivered: true}, nil
}

type apiEnv struct {
	engine *finauth.Engine
	srv    *httptest.Server
}

func newAPI(t *testing.T, rl *middleware.RateLimiter, throttles Throttles) *apiEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := finauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.BcryptCost = password.MinBcryptCost
	cfg.Metrics.Enabled = true

	engine, err := finauth.New().WithConfig(cfg).WithRedis(rdb).WithMailer(nopMailer{}).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	srv := httptest.NewServer(NewRouter(RouterDeps{
		Engine:      engine,
		RateLimiter: rl,
		Throttles:   throttles,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "finauth_up 1\n")
		}),
	}))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &apiEnv{engine: engine, srv: srv}
}

func (env *apiEnv) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any, http.Header) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out, resp.Header
}

func tokensOf(t *testing.T, body map[string]any) (access, refresh string) {
	t.Helper()
	tokens, ok := body["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("response has no tokens: %v", body)
	}
	return tokens["accessToken"].(string), tokens["refreshToken"].(string)
}

func (env *apiEnv) signUp(t *testing.T, email string) map[string]any {
	t.Helper()
	code, body, _ := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": "pw12345678", "name": "Pat",
	})
	if code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d %v", code, body)
	}
	return body
}

func TestSignUpVerifyAndMe(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	body := env.signUp(t, "Pat@Example.com")

	access, _ := tokensOf(t, body)
	if body["tokens"].(map[string]any)["expiresIn"].(float64) != 900 {
		t.Fatalf("expected expiresIn 900, got %v", body["tokens"])
	}
	verifyTok, _ := body["emailVerificationToken"].(string)
	if verifyTok == "" {
		t.Fatal("expected verification token outside production")
	}

	code, me, _ := env.do(t, http.MethodGet, "/auth/me", access, nil)
	if code != http.StatusOK || me["email"] != "pat@example.com" || me["emailVerified"] != false {
		t.Fatalf("unexpected /auth/me: %d %v", code, me)
	}

	code, v, _ := env.do(t, http.MethodPost, "/auth/verify", access, map[string]string{"token": verifyTok})
	if code != http.StatusOK || v["ok"] != true {
		t.Fatalf("verify: %d %v", code, v)
	}
	code, v, _ = env.do(t, http.MethodGet, "/auth/verify-email?token="+verifyTok, "", nil)
	if code != http.StatusOK || v["reused"] != true {
		t.Fatalf("expected reused verification, got %d %v", code, v)
	}

	code, me, _ = env.do(t, http.MethodGet, "/auth/me", access, nil)
	if code != http.StatusOK || me["emailVerified"] != true {
		t.Fatalf("expected verified user, got %d %v", code, me)
	}
}

func TestVerifyEmailTokenMissing(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	code, body, _ := env.do(t, http.MethodGet, "/auth/verify-email", "", nil)
	if code != http.StatusOK || body["ok"] != false || body["message"] != "Missing token" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}

func TestRefreshAnomaliesAreIndistinguishable(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	_, first := tokensOf(t, env.signUp(t, "rot@example.com"))

	code, rotated, _ := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": first})
	if code != http.StatusOK || rotated["refreshToken"] == "" {
		t.Fatalf("refresh: %d %v", code, rotated)
	}
	second := rotated["refreshToken"].(string)

	// The replay revokes the session, so second must come after it.
	for _, tc := range []struct{ name, tok string }{
		{"replayed", first},
		{"malformed", "nope"},
		{"unknown", "00000000000000000000000000000000.abc"},
		{"revoked", second},
	} {
		code, body, _ := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": tc.tok})
		if code != http.StatusUnauthorized || body["error"] != msgInvalidRefreshToken {
			t.Fatalf("%s: expected generic 401, got %d %v", tc.name, code, body)
		}
	}
}

func TestSignUpErrors(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	env.signUp(t, "dup@example.com")

	code, body, _ := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "DUP@example.com", "password": "pw12345678",
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %v", code, body)
	}

	code, body, _ = env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "short@example.com", "password": "x",
	})
	if code != http.StatusBadRequest || !strings.Contains(body["error"].(string), "password") {
		t.Fatalf("expected 400 validation, got %d %v", code, body)
	}

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/auth/signup", strings.NewReader("[1,2"))
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}
}

func TestRegisterReturnsUserOnly(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	code, body, _ := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "reg@example.com", "password": "pw12345678",
	})
	if code != http.StatusCreated || body["email"] != "reg@example.com" {
		t.Fatalf("unexpected register response %d %v", code, body)
	}
	if _, ok := body["tokens"]; ok {
		t.Fatal("register must not return tokens")
	}
}

func TestSignInAndSessions(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	first, _ := tokensOf(t, env.signUp(t, "multi@example.com"))

	code, body, _ := env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
		"email": "multi@example.com", "password": "wrong-password",
	})
	if code != http.StatusUnauthorized || body["error"] != finauth.ErrInvalidCredentials.Error() {
		t.Fatalf("expected invalid credentials, got %d %v", code, body)
	}
	code, body, _ = env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
		"email": "ghost@example.com", "password": "pw12345678",
	})
	if code != http.StatusUnauthorized || body["error"] != finauth.ErrInvalidCredentials.Error() {
		t.Fatalf("expected identical response for unknown email, got %d %v", code, body)
	}

	code, body, _ = env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{
		"email": "multi@example.com", "password": "pw12345678",
	})
	if code != http.StatusOK {
		t.Fatalf("signin: %d %v", code, body)
	}
	second, _ := tokensOf(t, body)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+second)
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	var sessions []activeSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	resp.Body.Close()
	if len(sessions) != 2 || !sessions[0].Current || sessions[1].Current {
		t.Fatalf("expected current session first, got %+v", sessions)
	}

	code, body, _ = env.do(t, http.MethodDelete, "/auth/sessions/"+sessions[1].ID, second, nil)
	if code != http.StatusOK || body["revoked"] != true {
		t.Fatalf("revoke: %d %v", code, body)
	}
	if code, _, _ := env.do(t, http.MethodGet, "/auth/me", first, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected revoked session token to fail, got %d", code)
	}
	if code, _, _ := env.do(t, http.MethodDelete, "/auth/sessions/missing", second, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", code)
	}

	if code, _, _ := env.do(t, http.MethodPost, "/auth/signout", second, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204 on signout, got %d", code)
	}
	if code, _, _ := env.do(t, http.MethodGet, "/auth/sessions", second, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after signout, got %d", code)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	access, refresh := tokensOf(t, env.signUp(t, "reset@example.com"))

	code, body, _ := env.do(t, http.MethodPost, "/auth/forgot", "", map[string]string{"email": "nobody@example.com"})
	if code != http.StatusOK || body["sent"] != true || body["token"] != nil {
		t.Fatalf("unknown email: %d %v", code, body)
	}

	code, body, _ = env.do(t, http.MethodPost, "/auth/forgot", "", map[string]string{"email": "reset@example.com"})
	if code != http.StatusOK || body["token"] == nil {
		t.Fatalf("forgot: %d %v", code, body)
	}
	tok := body["token"].(string)

	code, body, _ = env.do(t, http.MethodPost, "/auth/reset", "", map[string]string{"token": tok, "password": "new-password-1"})
	if code != http.StatusOK || body["reset"] != true {
		t.Fatalf("reset: %d %v", code, body)
	}
	code, body, _ = env.do(t, http.MethodPost, "/auth/reset", "", map[string]string{"token": tok, "password": "new-password-2"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected used reset token to fail, got %d %v", code, body)
	}

	if code, _, _ := env.do(t, http.MethodGet, "/auth/me", access, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected global logout, got %d", code)
	}
	if code, _, _ := env.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refresh}); code != http.StatusUnauthorized {
		t.Fatalf("expected refresh to fail after reset, got %d", code)
	}
	code, _, _ = env.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": "reset@example.com", "password": "new-password-1"})
	if code != http.StatusOK {
		t.Fatalf("expected sign-in with new password, got %d", code)
	}
}

func TestResendCooldownSetsRetryAfter(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	access, _ := tokensOf(t, env.signUp(t, "resend@example.com"))

	// The sign-up mail already holds the cooldown slot.
	for _, path := range []string{"/auth/verify/resend", "/auth/resend-verification"} {
		code, body, hdr := env.do(t, http.MethodPost, path, access, nil)
		if code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected 429, got %d %v", path, code, body)
		}
		if hdr.Get("Retry-After") != "300" {
			t.Fatalf("%s: expected Retry-After 300, got %q", path, hdr.Get("Retry-After"))
		}
	}
}

func TestRouteThrottleRecordsRateLimit(t *testing.T) {
	throttles := DefaultThrottles()
	throttles.SignIn = middleware.Throttle{Limit: 1, Window: time.Minute}

	var env *apiEnv
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		CleanupInterval: time.Minute,
		OnLimit: func(r *http.Request, scope string) {
			RateLimitHook(env.engine)(r, scope)
		},
	})
	defer rl.Stop()
	env = newAPI(t, rl, throttles)

	creds := map[string]string{"email": "x@example.com", "password": "pw12345678"}
	if code, _, _ := env.do(t, http.MethodPost, "/auth/signin", "", creds); code != http.StatusUnauthorized {
		t.Fatalf("expected first attempt to reach the engine, got %d", code)
	}
	code, body, hdr := env.do(t, http.MethodPost, "/auth/signin", "", creds)
	if code != http.StatusTooManyRequests || hdr.Get("Retry-After") != "60" {
		t.Fatalf("expected throttled 429, got %d %v %q", code, body, hdr.Get("Retry-After"))
	}
	if n := env.engine.MetricsSnapshot().Counters[finauth.MetricRateLimitHit]; n != 1 {
		t.Fatalf("expected one rate limit hit, got %d", n)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	code, body, _ := env.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", code, body)
	}

	resp, err := env.srv.Client().Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(raw), "finauth_up") {
		t.Fatalf("unexpected metrics body %q", raw)
	}
}

func TestStatusForKinds(t *testing.T) {
	cases := map[error]int{
		finauth.ErrValidation:             http.StatusBadRequest,
		finauth.ErrEmailAlreadyRegistered: http.StatusConflict,
		finauth.ErrUnauthorized:           http.StatusUnauthorized,
		finauth.ErrInvalidOrExpiredToken:  http.StatusForbidden,
		finauth.ErrSessionNotFound:        http.StatusNotFound,
		finauth.ErrVerificationCooldown:   http.StatusTooManyRequests,
		finauth.ErrStoreUnavailable:       http.StatusServiceUnavailable,
		io.ErrUnexpectedEOF:               http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	env := newAPI(t, nil, DefaultThrottles())
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/auth/sessions"},
		{http.MethodDelete, "/auth/sessions/abc"},
		{http.MethodPost, "/auth/signout"},
		{http.MethodPost, "/auth/verify"},
		{http.MethodPost, "/auth/verify/resend"},
	} {
		if code, _, _ := env.do(t, route.method, route.path, "", nil); code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, code)
		}
	}
}
