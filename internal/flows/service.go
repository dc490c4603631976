package flows

import (
	"context"

	"github.com/MrEthical07/finauth/store"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	deps.normalize()
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.ready()
}

func (s Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	return RunSignUp(ctx, req, s.deps)
}

func (s Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	return RunSignIn(ctx, req, s.deps)
}

func (s Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) RefreshResult {
	return RunRefresh(ctx, refreshToken, meta, s.deps)
}

func (s Service) VerifyEmail(ctx context.Context, userID, raw string) (*VerifyEmailResult, error) {
	return RunVerifyEmail(ctx, userID, raw, s.deps)
}

func (s Service) ResendVerification(ctx context.Context, userID string) (*ResendResult, error) {
	return RunResendVerification(ctx, userID, s.deps)
}

func (s Service) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	return RunForgotPassword(ctx, email, s.deps)
}

func (s Service) ResetPassword(ctx context.Context, raw, newPassword string) (*ResetPasswordResult, error) {
	return RunResetPassword(ctx, raw, newPassword, s.deps)
}

func (s Service) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionSummary, error) {
	return RunListSessions(ctx, userID, currentSessionID, s.deps)
}

func (s Service) RevokeSession(ctx context.Context, userID, sessionID string) (*RevokeSessionResult, error) {
	return RunRevokeSession(ctx, userID, sessionID, s.deps)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	return RunAuthenticate(ctx, accessToken, s.deps)
}

func (s Service) Me(ctx context.Context, userID string) (*store.User, error) {
	return RunMe(ctx, userID, s.deps)
}
