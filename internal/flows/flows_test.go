package flows

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var errTestValidation = errors.New("validation")

func testDeps() Deps {
	return Deps{
		Policy: Policy{MinPasswordLength: 8, MaxPasswordBytes: 72},
		Errors: Errors{
			Validation:       errTestValidation,
			StoreUnavailable: errors.New("unavailable"),
			EngineNotReady:   errors.New("not ready"),
		},
	}
}

func TestValidateEmail(t *testing.T) {
	d := testDeps()
	tests := []struct {
		email string
		ok    bool
	}{
		{"alice@example.com", true},
		{"", false},
		{"alice", false},
		{"Alice <alice@example.com>", false},
		{"alice@", false},
	}
	for _, tt := range tests {
		err := d.validateEmail(tt.email)
		if tt.ok && err != nil {
			t.Fatalf("validateEmail(%q): unexpected error %v", tt.email, err)
		}
		if !tt.ok && !errors.Is(err, errTestValidation) {
			t.Fatalf("validateEmail(%q): expected validation error, got %v", tt.email, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	d := testDeps()
	if err := d.validatePassword("short"); !errors.Is(err, errTestValidation) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if err := d.validatePassword("correct horse"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.validatePassword(strings.Repeat("a", 73)); !errors.Is(err, errTestValidation) {
		t.Fatalf("expected oversize password rejection, got %v", err)
	}
	// Eight runes, more than eight bytes.
	if err := d.validatePassword("éééééééé"); err != nil {
		t.Fatalf("expected rune-counted length, got %v", err)
	}
}

func TestHouseholdName(t *testing.T) {
	if got := householdName(""); got != "Household" {
		t.Fatalf("householdName(\"\") = %q", got)
	}
	if got := householdName("Alice"); got != "Alice's Household" {
		t.Fatalf("householdName(Alice) = %q", got)
	}
}

func TestStoreErrKeepsCancellation(t *testing.T) {
	d := testDeps()
	if err := d.storeErr(context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, d.Errors.StoreUnavailable) {
		t.Fatalf("expected bare cancellation, got %v", err)
	}
	if err := d.storeErr(errors.New("boom")); !errors.Is(err, d.Errors.StoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if d.storeErr(nil) != nil {
		t.Fatal("storeErr(nil) must be nil")
	}
}

func TestRunRefreshNotReady(t *testing.T) {
	res := RunRefresh(context.Background(), "a.b", RequestMeta{}, testDeps())
	if res.Failure != RefreshFailureStore || !errors.Is(res.Err, testDeps().Errors.EngineNotReady) {
		t.Fatalf("expected not-ready failure, got %v %v", res.Failure, res.Err)
	}
}

func TestRefreshFailureKindString(t *testing.T) {
	if RefreshFailureReuse.String() != "reuse" || RefreshFailureKind(99).String() != "unknown" {
		t.Fatal("unexpected failure kind names")
	}
}
