package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureNotFound
	RefreshFailureRevoked
	RefreshFailureExpired
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated credentials or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	UserID    string
	SessionID string
	Session   IssuedSession
}

// RunRefresh rotates a refresh token.
//
// A read-only lookup classifies the presented token first: a missing token or
// session is rejected; a revoked token or session, or a secret that does not
// match, revokes the session and every refresh token it has before the error
// is returned; an expired token is rejected without state change. Only a token
// that passes those checks pays for minting a successor. The rotation
// transaction then re-reads the token, touches the session, creates the
// successor and marks the presented one rotated.
func RunRefresh(ctx context.Context, refreshToken string, meta RequestMeta, deps Deps) RefreshResult {
	deps.normalize()
	if !deps.ready() {
		return RefreshResult{Failure: RefreshFailureStore, Err: deps.Errors.EngineNotReady}
	}

	tokenID, secret, err := token.Parse(refreshToken)
	if err != nil {
		return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureMalformed, Err: deps.Errors.MalformedToken})
	}

	now := deps.Now()
	var (
		res       RefreshResult
		tokenHash string
	)
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = RefreshResult{}
		rt, sess, failure, err := loadRefresh(ctx, tx, tokenID, now)
		if err != nil || rt == nil {
			res.Failure = failure
			return err
		}
		res.UserID, res.SessionID, res.Failure = rt.UserID, rt.SessionID, failure
		tokenHash = rt.TokenHash
		if failure == RefreshFailureRevoked {
			return revokeSessionCascade(ctx, tx, sess.ID, now)
		}
		return nil
	})
	if err != nil {
		return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureStore, Err: deps.storeErr(err), SessionID: res.SessionID})
	}
	if res.Failure != RefreshFailureNone {
		return deps.refreshRejected(ctx, res)
	}

	ok, err := deps.Hasher.Verify(secret, tokenHash)
	if err != nil {
		return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureStore, Err: deps.storeErr(err), SessionID: res.SessionID})
	}
	if !ok {
		res.Failure = RefreshFailureReuse
		err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return revokeSessionCascade(ctx, tx, res.SessionID, now)
		})
		if err != nil {
			return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureStore, Err: deps.storeErr(err), SessionID: res.SessionID})
		}
		return deps.refreshRejected(ctx, res)
	}

	nextID, nextSecret, nextHash, err := deps.mintSecret()
	if err != nil {
		return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureStore, Err: deps.storeErr(err), SessionID: res.SessionID})
	}

	userID, sessionID := res.UserID, res.SessionID
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = RefreshResult{UserID: userID, SessionID: sessionID}
		rt, sess, failure, err := loadRefresh(ctx, tx, tokenID, now)
		if err != nil || rt == nil {
			res.Failure = failure
			return err
		}
		res.Failure = failure
		switch failure {
		case RefreshFailureRevoked:
			// Rotated by a concurrent refresh since the lookup.
			return revokeSessionCascade(ctx, tx, sess.ID, now)
		case RefreshFailureExpired:
			return nil
		}

		if err := tx.Sessions().Touch(ctx, sess.ID, store.StringPtr(meta.UserAgent), store.StringPtr(meta.IP), now); err != nil {
			return err
		}
		if err := tx.RefreshTokens().Create(ctx, &store.RefreshToken{
			ID:        nextID,
			SessionID: sess.ID,
			UserID:    rt.UserID,
			TokenHash: nextHash,
			ExpiresAt: now.Add(deps.Policy.RefreshTTL),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.RefreshTokens().MarkRotated(ctx, rt.ID, nextID, now)
	})
	if errors.Is(err, store.ErrConflict) {
		// Another transaction rotated the token between read and write; the
		// presented token is now a used one.
		res.Failure = RefreshFailureRevoked
		err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return revokeSessionCascade(ctx, tx, sessionID, now)
		})
	}
	if err != nil {
		return deps.refreshFailed(ctx, RefreshResult{Failure: RefreshFailureStore, Err: deps.storeErr(err), SessionID: sessionID})
	}
	if res.Failure != RefreshFailureNone {
		return deps.refreshRejected(ctx, res)
	}

	access, err := deps.IssueAccess(res.UserID, res.SessionID)
	if err != nil {
		res.Failure = RefreshFailureIssueAccess
		res.Err = err
		return deps.refreshFailed(ctx, res)
	}
	res.Session = IssuedSession{
		SessionID:    res.SessionID,
		AccessToken:  access,
		RefreshToken: token.Compose(nextID, nextSecret),
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, res.UserID, res.SessionID, nil, nil)
	return res
}

// loadRefresh reads the token and its session and classifies them at now
// without checking the secret. A nil token with a nil error means the token
// or its session does not exist.
func loadRefresh(ctx context.Context, tx store.Tx, tokenID string, now time.Time) (*store.RefreshToken, *store.Session, RefreshFailureKind, error) {
	rt, err := tx.RefreshTokens().ByID(ctx, tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, RefreshFailureNotFound, nil
	}
	if err != nil {
		return nil, nil, RefreshFailureNone, err
	}
	sess, err := tx.Sessions().ByID(ctx, rt.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, RefreshFailureNotFound, nil
	}
	if err != nil {
		return nil, nil, RefreshFailureNone, err
	}
	switch {
	case rt.Revoked() || !sess.Active():
		return rt, sess, RefreshFailureRevoked, nil
	case !now.Before(rt.ExpiresAt):
		return rt, sess, RefreshFailureExpired, nil
	}
	return rt, sess, RefreshFailureNone, nil
}

// refreshRejected maps a classified failure onto its sentinel, logging and
// auditing the anomalies.
func (d Deps) refreshRejected(ctx context.Context, res RefreshResult) RefreshResult {
	switch res.Failure {
	case RefreshFailureNotFound:
		res.Err = d.Errors.InvalidRefreshToken
	case RefreshFailureRevoked:
		res.Err = d.Errors.RefreshTokenRevoked
		d.Logger.WarnContext(ctx, "revoked refresh token presented; session revoked",
			"user_id", res.UserID, "session_id", res.SessionID)
	case RefreshFailureExpired:
		res.Err = d.Errors.RefreshTokenExpired
	case RefreshFailureReuse:
		res.Err = d.Errors.RefreshTokenReuseDetected
		d.Logger.WarnContext(ctx, "refresh token reuse detected; session revoked",
			"user_id", res.UserID, "session_id", res.SessionID)
		d.MetricInc(d.Metrics.RefreshReuseDetected)
		d.EmitAudit(ctx, d.Events.RefreshReuseDetected, false, res.UserID, res.SessionID, res.Err, nil)
	}
	return d.refreshFailed(ctx, res)
}

func (d Deps) refreshFailed(ctx context.Context, res RefreshResult) RefreshResult {
	d.MetricInc(d.Metrics.RefreshFailure)
	if res.Failure != RefreshFailureReuse {
		d.EmitAudit(ctx, d.Events.RefreshFailure, false, res.UserID, res.SessionID, res.Err, reason(res.Failure.String()))
	}
	return res
}

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureMalformed:
		return "malformed"
	case RefreshFailureNotFound:
		return "not_found"
	case RefreshFailureRevoked:
		return "revoked"
	case RefreshFailureExpired:
		return "expired"
	case RefreshFailureReuse:
		return "reuse"
	case RefreshFailureStore:
		return "store"
	case RefreshFailureIssueAccess:
		return "issue_access"
	default:
		return "unknown"
	}
}

// revokeSessionCascade revokes a session and every refresh token issued for it.
func revokeSessionCascade(ctx context.Context, tx store.Tx, sessionID string, at time.Time) error {
	if err := tx.Sessions().Revoke(ctx, sessionID, at); err != nil {
		return err
	}
	return tx.RefreshTokens().RevokeAllForSession(ctx, sessionID, at)
}
