package finauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/finauth/internal/audit"
	"github.com/MrEthical07/finauth/internal/flows"
	"github.com/MrEthical07/finauth/jwt"
	"github.com/MrEthical07/finauth/mail"
	"github.com/MrEthical07/finauth/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine runs the auth flows against the configured store. It is immutable
// after [Builder.Build] and safe for concurrent use.
type Engine struct {
	config    Config
	flows     flows.Service
	store     store.Store
	logger    *slog.Logger
	clock     Clock
	mailer    mail.Mailer
	templates *mail.Templates
	jwt       *jwt.Manager
	tracer    trace.Tracer
	audit     *audit.Dispatcher
	metrics   *Metrics
}

// Close stops the audit dispatcher after draining queued events. The store
// and Redis client are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping checks the record store.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher queue was full. It reads [MetricAuditDropped], so it stays zero
// while metrics are disabled.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.metrics.Value(MetricAuditDropped)
}

// MetricsSnapshot copies the engine counters and latency histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "finauth."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}

// SignUp registers a user, creates their household and opens a first
// session. The verification mail is sent after commit; its failure does not
// fail the call.
func (e *Engine) SignUp(ctx context.Context, in SignUpInput, meta RequestMeta) (*SignUpResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "SignUp")
	res, err := e.flows.SignUp(ctx, flows.SignUpRequest{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Meta:     flowMeta(metaFromContext(ctx, meta)),
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{
		User:              userView(&res.User),
		HouseholdID:       res.HouseholdID,
		Tokens:            tokenPair(res.Session),
		VerificationToken: res.VerificationToken,
	}, nil
}

// SignIn checks credentials and opens a new session. Unknown email and wrong
// password both return [ErrInvalidCredentials].
func (e *Engine) SignIn(ctx context.Context, in SignInInput, meta RequestMeta) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricSignInLatency, time.Since(start)) }()
	}
	ctx, span := e.startSpan(ctx, "SignIn")
	res, err := e.flows.SignIn(ctx, flows.SignInRequest{
		Email:    in.Email,
		Password: in.Password,
		Meta:     flowMeta(metaFromContext(ctx, meta)),
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &SignInResult{
		User:   userView(&res.User),
		Tokens: tokenPair(res.Session),
	}, nil
}

// Refresh rotates refreshToken and returns a new token pair.
//
// Presenting a revoked token, or a known id with the wrong secret, revokes
// the whole session before the error is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}
	ctx, span := e.startSpan(ctx, "Refresh")
	res := e.flows.Refresh(ctx, refreshToken, flowMeta(metaFromContext(ctx, meta)))
	if res.Failure != flows.RefreshFailureNone {
		span.SetAttributes(attribute.String("finauth.refresh.failure", res.Failure.String()))
	}
	endSpan(span, res.Err)
	if res.Err != nil {
		return nil, res.Err
	}
	pair := tokenPair(res.Session)
	return &pair, nil
}

// VerifyEmail consumes a verification token on behalf of the signed-in user.
// A token minted for another user returns [ErrForbidden].
func (e *Engine) VerifyEmail(ctx context.Context, userID, rawToken string) (*VerifyEmailResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return e.verifyEmail(ctx, userID, rawToken)
}

// VerifyEmailToken consumes a verification token presented without a
// session, as when the link is opened from the mail.
func (e *Engine) VerifyEmailToken(ctx context.Context, rawToken string) (*VerifyEmailResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.verifyEmail(ctx, "", rawToken)
}

func (e *Engine) verifyEmail(ctx context.Context, userID, rawToken string) (*VerifyEmailResult, error) {
	ctx, span := e.startSpan(ctx, "VerifyEmail", attribute.Bool("finauth.verify.scoped", userID != ""))
	res, err := e.flows.VerifyEmail(ctx, userID, rawToken)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &VerifyEmailResult{UserID: res.UserID, Verified: res.Verified, Reused: res.Reused}, nil
}

// ResendVerification mints a fresh verification token, superseding earlier
// ones, and mails it. Calls inside the cooldown window fail with
// [ErrVerificationCooldown]; see [RetryAfter].
func (e *Engine) ResendVerification(ctx context.Context, userID string) (*ResendResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ResendVerification")
	res, err := e.flows.ResendVerification(ctx, userID)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &ResendResult{Sent: res.Sent, Token: res.Token}, nil
}

// ForgotPassword starts a password reset. The result is the same whether or
// not the email belongs to an account.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ForgotPassword")
	res, err := e.flows.ForgotPassword(ctx, email)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &ForgotPasswordResult{Sent: res.Sent, Token: res.Token}, nil
}

// ResetPassword sets a new password and signs the user out everywhere.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) (*ResetPasswordResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ResetPassword")
	res, err := e.flows.ResetPassword(ctx, rawToken, newPassword)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &ResetPasswordResult{Reset: res.Reset}, nil
}

// ListSessions returns the user's active sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionSummary, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "ListSessions")
	list, err := e.flows.ListSessions(ctx, userID, currentSessionID)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, SessionSummary(s))
	}
	return out, nil
}

// RevokeSession revokes one of the user's sessions and its refresh tokens.
// Missing and foreign sessions both return [ErrSessionNotFound].
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) (*RevokeSessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "RevokeSession")
	res, err := e.flows.RevokeSession(ctx, userID, sessionID)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return &RevokeSessionResult{Revoked: res.Revoked}, nil
}

// SignOut revokes the caller's own session.
func (e *Engine) SignOut(ctx context.Context, p Principal) error {
	_, err := e.RevokeSession(ctx, p.UserID, p.SessionID)
	return err
}

// Authenticate verifies an access token and checks that its session is
// still active.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	p, err := e.flows.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: p.UserID, SessionID: p.SessionID}, nil
}

// Me returns the current user.
func (e *Engine) Me(ctx context.Context, userID string) (*UserView, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	u, err := e.flows.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := userView(u)
	return &v, nil
}

func flowMeta(m RequestMeta) flows.RequestMeta {
	return flows.RequestMeta{UserAgent: m.UserAgent, IP: m.IP}
}

func tokenPair(s flows.IssuedSession) TokenPair {
	return TokenPair{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		SessionID:    s.SessionID,
	}
}

func userView(u *store.User) UserView {
	return UserView{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		EmailVerified:   u.EmailVerified(),
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}
