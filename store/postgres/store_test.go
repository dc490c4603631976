package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/finauth/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, store.ErrDuplicate},
		{"pq unique", &pq.Error{Code: "23505"}, store.ErrDuplicate},
		{"wrapped pgx unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), store.ErrDuplicate},
		{"other", errors.New("connection reset"), store.ErrUnavailable},
	}
	for _, tc := range cases {
		if got := classify(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if !isRetryable(classify(&pgconn.PgError{Code: "40001"})) {
		t.Fatal("expected serialization failure to stay retryable")
	}
	if !isRetryable(&pq.Error{Code: "40P01"}) {
		t.Fatal("expected deadlock to be retryable")
	}
	if classify(nil) != nil {
		t.Fatal("expected nil to stay nil")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}

// newTestStore connects to FINAUTH_TEST_DATABASE_URL, migrates and wipes the
// schema. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FINAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FINAUTH_TEST_DATABASE_URL not set")
	}
	driver := os.Getenv("FINAUTH_TEST_DATABASE_DRIVER")
	s, err := Open(context.Background(), driver, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate("up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.DB().Exec(`TRUNCATE users, households, household_members, sessions, refresh_tokens, single_use_tokens CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, s *Store, email string) string {
	t.Helper()
	id := uuid.NewString()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, &store.User{ID: id, Email: email, PasswordHash: "h", CreatedAt: t0})
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func TestPostgresDuplicateEmailCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedUser(t, s, "alice@x.io")

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, &store.User{ID: uuid.NewString(), Email: "ALICE@x.io", PasswordHash: "h", CreatedAt: t0})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestPostgresRollbackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, &store.User{ID: "u-x", Email: "x@x.io", PasswordHash: "h", CreatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	err = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Users().ByID(ctx, "u-x")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected rolled back user to be absent, got %v", err)
	}
}

func TestPostgresConcurrentRotationSingleWinner(t *testing.T) {
	s := newTestStore(t)
	userID := seedUser(t, s, "race@x.io")
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Sessions().Create(ctx, &store.Session{ID: "s-1", UserID: userID, CreatedAt: t0, LastSeen: t0}); err != nil {
			return err
		}
		return tx.RefreshTokens().Create(ctx, &store.RefreshToken{
			ID: "rt-1", SessionID: "s-1", UserID: userID, TokenHash: "h", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				rt, err := tx.RefreshTokens().ByID(ctx, "rt-1")
				if err != nil {
					return err
				}
				if rt.Revoked() {
					return store.ErrConflict
				}
				return tx.RefreshTokens().MarkRotated(ctx, "rt-1", fmt.Sprintf("next-%d", i), t0)
			})
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestPostgresSupersedeAndPurge(t *testing.T) {
	s := newTestStore(t)
	userID := seedUser(t, s, "tok@x.io")
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SingleUseTokens().Create(ctx, &store.SingleUseToken{
			ID: "r-1", UserID: userID, Purpose: store.PurposeResetPassword, TokenHash: "h", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
		}); err != nil {
			return err
		}
		return tx.SingleUseTokens().SupersedeOutstanding(ctx, userID, store.PurposeResetPassword, t0.Add(time.Minute))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	_ = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tok, err := tx.SingleUseTokens().ByID(ctx, "r-1")
		if err != nil {
			t.Fatalf("by id: %v", err)
		}
		if !tok.ExpiresAt.Equal(t0.Add(time.Minute)) {
			t.Fatalf("expected superseded expiry, got %v", tok.ExpiresAt)
		}
		return nil
	})

	n, err := s.PurgeExpired(ctx, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
}
