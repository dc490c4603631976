package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/finauth/internal/config"
	"github.com/MrEthical07/finauth/mail"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		want Command
	}{
		{nil, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate", "down"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"unknown"}, CommandServe},
	}
	for _, tc := range cases {
		if got := ParseCommand(tc.args); got != tc.want {
			t.Fatalf("ParseCommand(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestMigrateDirection(t *testing.T) {
	if got := migrateDirection([]string{"migrate"}); got != "up" {
		t.Fatalf("expected default up, got %q", got)
	}
	if got := migrateDirection([]string{"migrate", "down"}); got != "down" {
		t.Fatalf("expected down, got %q", got)
	}
}

type fakePurger struct {
	calls atomic.Int32
	err   error
}

func (f *fakePurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestPurgeLoopRunsUntilCancelled(t *testing.T) {
	p := &fakePurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, p, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated purges, got %d", p.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purge loop did not stop")
	}
}

func TestPurgeLoopDisabled(t *testing.T) {
	p := &fakePurger{err: errors.New("boom")}
	purgeLoop(context.Background(), p, 0, slog.Default())
	if p.calls.Load() != 0 {
		t.Fatal("expected no purge when interval is zero")
	}
}

func TestRunHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := runHealthcheck(addr); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	if err := runHealthcheck("bad-addr"); err == nil {
		t.Fatal("expected error for address without port")
	}
}

func TestNewMailer(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := newMailer(&config.Config{MailProvider: config.MailProviderLog}, log)
	if err != nil {
		t.Fatalf("log mailer: %v", err)
	}
	if _, ok := m.(*mail.LogMailer); !ok {
		t.Fatalf("expected LogMailer, got %T", m)
	}

	m, err = newMailer(&config.Config{
		MailProvider: config.MailProviderSMTP,
		SMTPHost:     "smtp.example.com",
		MailFrom:     "no-reply@example.com",
		MailRate:     2,
	}, log)
	if err != nil {
		t.Fatalf("smtp mailer: %v", err)
	}
	if _, ok := m.(*mail.Throttled); !ok {
		t.Fatalf("expected throttled mailer, got %T", m)
	}

	if _, err := newMailer(&config.Config{MailProvider: config.MailProviderSMTP}, log); err == nil {
		t.Fatal("expected error for smtp without host")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	if got := maskDatabaseURL("postgres://user:secret@db:5432/finauth"); strings.Contains(got, "secret") {
		t.Fatalf("credentials leaked: %q", got)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Fatalf("expected *** for short url, got %q", got)
	}
}
