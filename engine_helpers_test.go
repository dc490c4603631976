package finauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/finauth/mail"
	"github.com/MrEthical07/finauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	fail error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) (mail.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return mail.Receipt{}, m.fail
	}
	m.msgs = append(m.msgs, msg)
	return mail.Receipt{Delivered: true, ID: "test"}, nil
}

func (m *captureMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.msgs...)
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// engineTestConfig keeps bcrypt at its minimum cost so tests stay fast.
func engineTestConfig() Config {
	cfg := validTestConfig()
	cfg.Password.BcryptCost = password.MinBcryptCost
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	clock  *fixedClock
	mailer *captureMailer
}

func newTestEnv(t testing.TB, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{mr: mr, clock: newFixedClock(), mailer: &captureMailer{}}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(env.clock).
		WithMailer(env.mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func (env *testEnv) signUp(t testing.TB, email string) *SignUpResult {
	t.Helper()

	res, err := env.engine.SignUp(context.Background(), SignUpInput{
		Email:    email,
		Password: "pw12345678",
		Name:     "Test User",
	}, RequestMeta{UserAgent: "test-agent", IP: "192.0.2.10"})
	if err != nil {
		t.Fatalf("SignUp(%s) failed: %v", email, err)
	}
	return res
}

// tamperSecret keeps the token id and replaces the secret half.
func tamperSecret(t *testing.T, tok string) string {
	t.Helper()
	id, _, ok := strings.Cut(tok, ".")
	if !ok {
		t.Fatalf("token %q has no separator", tok)
	}
	return id + ".00000000000000000000000000000000"
}

func requireErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
