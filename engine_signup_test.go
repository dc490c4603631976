package finauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSignUpCreatesSessionAndSendsVerification(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	ctx := context.Background()

	res, err := env.engine.SignUp(ctx, SignUpInput{
		Email:    "  Alice@Example.COM ",
		Password: "pw12345678",
		Name:     "Alice",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", res.User.Email)
	}
	if res.User.EmailVerified {
		t.Fatal("new user must not be verified")
	}
	if res.HouseholdID == "" {
		t.Fatal("expected a household to be created")
	}
	if res.VerificationToken == "" {
		t.Fatal("expected verification token outside production mode")
	}

	p, err := env.engine.Authenticate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.UserID != res.User.ID || p.SessionID != res.Tokens.SessionID {
		t.Fatalf("unexpected principal %+v", p)
	}

	sent := env.mailer.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(sent))
	}
	if sent[0].Subject != "Verify your email address" || !strings.Contains(sent[0].Text, "/verify-email?token="+res.VerificationToken) {
		t.Fatalf("unexpected verification mail: %+v", sent[0])
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)

	tests := []struct {
		name string
		in   SignUpInput
	}{
		{name: "empty email", in: SignUpInput{Email: " ", Password: "pw12345678"}},
		{name: "bad email", in: SignUpInput{Email: "not-an-email", Password: "pw12345678"}},
		{name: "short password", in: SignUpInput{Email: "a@example.com", Password: "short"}},
		{name: "oversized password", in: SignUpInput{Email: "a@example.com", Password: strings.Repeat("p", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.SignUp(context.Background(), tt.in, RequestMeta{})
			requireErr(t, err, ErrValidation)
			if KindOf(err) != KindValidation {
				t.Fatalf("expected validation kind, got %v", KindOf(err))
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	env.signUp(t, "dup@example.com")

	_, err := env.engine.SignUp(context.Background(), SignUpInput{
		Email:    "DUP@example.com",
		Password: "another-password",
	}, RequestMeta{})
	requireErr(t, err, ErrEmailAlreadyRegistered)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(err))
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSignUpDuplicate]; got != 1 {
		t.Fatalf("expected duplicate counter 1, got %d", got)
	}
}

func TestSignUpSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	env.mailer.fail = errors.New("smtp down")

	res := env.signUp(t, "nomail@example.com")
	if res.Tokens.RefreshToken == "" {
		t.Fatal("sign-up must succeed when mail fails")
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricMailFailed] != 1 || snap.Counters[MetricMailDelivered] != 0 {
		t.Fatalf("unexpected mail counters: %+v", snap.Counters)
	}
}

func TestSignInAntiEnumeration(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	ctx := context.Background()
	env.signUp(t, "known@example.com")

	_, unknownErr := env.engine.SignIn(ctx, SignInInput{Email: "ghost@example.com", Password: "pw12345678"}, RequestMeta{})
	_, wrongErr := env.engine.SignIn(ctx, SignInInput{Email: "known@example.com", Password: "wrong-password"}, RequestMeta{})

	requireErr(t, unknownErr, ErrInvalidCredentials)
	requireErr(t, wrongErr, ErrInvalidCredentials)
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("unknown email and wrong password must be indistinguishable: %q vs %q", unknownErr, wrongErr)
	}
}

func TestSignInOpensIndependentSession(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	ctx := context.Background()
	up := env.signUp(t, "multi@example.com")

	in, err := env.engine.SignIn(ctx, SignInInput{Email: "Multi@Example.com", Password: "pw12345678"}, RequestMeta{UserAgent: "phone"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if in.Tokens.SessionID == up.Tokens.SessionID {
		t.Fatal("sign-in must open a new session")
	}

	sessions, err := env.engine.ListSessions(ctx, up.User.ID, in.Tokens.SessionID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %d", len(sessions))
	}
}

func TestSignInEmptyFields(t *testing.T) {
	env := newTestEnv(t, engineTestConfig(), nil)
	_, err := env.engine.SignIn(context.Background(), SignInInput{Email: "a@example.com"}, RequestMeta{})
	requireErr(t, err, ErrValidation)
}

func TestZeroEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.SignIn(context.Background(), SignInInput{}, RequestMeta{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := (&Engine{}).Refresh(context.Background(), "a.b", RequestMeta{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
