package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/finauth/store"
)

// SessionSummary is the caller-facing view of an active session.
type SessionSummary struct {
	ID        string
	UserAgent string
	IP        string
	CreatedAt time.Time
	LastSeen  time.Time
	Current   bool
}

type RevokeSessionResult struct {
	Revoked bool
}

// Principal is the identity carried by a verified access token whose session
// is still active.
type Principal struct {
	UserID    string
	SessionID string
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// RunListSessions returns the user's active sessions, newest first.
func RunListSessions(ctx context.Context, userID, currentSessionID string, deps Deps) ([]SessionSummary, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	var sessions []store.Session
	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.Sessions().ListActive(ctx, userID)
		sessions = s
		return err
	})
	if err != nil {
		return nil, deps.storeErr(err)
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{
			ID:        s.ID,
			UserAgent: deref(s.UserAgent),
			IP:        deref(s.IP),
			CreatedAt: s.CreatedAt,
			LastSeen:  s.LastSeen,
			Current:   s.ID == currentSessionID,
		})
	}
	return out, nil
}

// RunRevokeSession revokes one of the user's sessions and its refresh tokens.
// A session owned by someone else is reported as missing.
func RunRevokeSession(ctx context.Context, userID, sessionID string, deps Deps) (*RevokeSessionResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()
	found := false
	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found = false
		s, err := tx.Sessions().ByID(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.UserID != userID {
			return nil
		}
		found = true
		return revokeSessionCascade(ctx, tx, s.ID, now)
	})
	if err != nil {
		return nil, deps.storeErr(err)
	}
	if !found {
		return nil, deps.Errors.SessionNotFound
	}

	deps.MetricInc(deps.Metrics.SessionRevoked)
	deps.EmitAudit(ctx, deps.Events.SessionRevoked, true, userID, sessionID, nil, nil)
	return &RevokeSessionResult{Revoked: true}, nil
}

// RunAuthenticate verifies an access token and checks that its session is
// still active and owned by the token subject.
func RunAuthenticate(ctx context.Context, accessToken string, deps Deps) (*Principal, error) {
	deps.normalize()
	if !deps.ready() || deps.VerifyAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}

	userID, sessionID, err := deps.VerifyAccess(accessToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.AuthenticateFailure)
		deps.Logger.DebugContext(ctx, "access token rejected", "error", err)
		return nil, deps.Errors.Unauthorized
	}

	var sess *store.Session
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.Sessions().ByID(ctx, sessionID)
		sess = s
		return err
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		deps.MetricInc(deps.Metrics.AuthenticateFailure)
		return nil, deps.storeErr(err)
	}
	if sess == nil || !sess.Active() || sess.UserID != userID {
		deps.MetricInc(deps.Metrics.AuthenticateFailure)
		return nil, deps.Errors.Unauthorized
	}

	deps.MetricInc(deps.Metrics.AuthenticateSuccess)
	return &Principal{UserID: userID, SessionID: sessionID}, nil
}

// RunMe loads the user record behind an authenticated principal.
func RunMe(ctx context.Context, userID string, deps Deps) (*store.User, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	var user *store.User
	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().ByID(ctx, userID)
		user = u
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, deps.Errors.UserNotFound
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}
	return user, nil
}
