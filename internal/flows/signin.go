package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/token"
)

type SignInRequest struct {
	Email    string
	Password string
	Meta     RequestMeta
}

type SignInResult struct {
	User    store.User
	Session IssuedSession
}

// RunSignIn checks credentials and opens a new session. Unknown email and
// wrong password are indistinguishable to the caller.
func RunSignIn(ctx context.Context, req SignInRequest, deps Deps) (*SignInResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email := store.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, fmt.Errorf("%w: email and password are required", deps.Errors.Validation)
	}

	fail := func(userID, why string) (*SignInResult, error) {
		deps.MetricInc(deps.Metrics.SignInFailure)
		deps.EmitAudit(ctx, deps.Events.SignInFailure, false, userID, "", deps.Errors.InvalidCredentials, reason(why))
		return nil, deps.Errors.InvalidCredentials
	}

	var user *store.User
	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().ByEmail(ctx, email)
		user = u
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		deps.Dummy.Burn(req.Password)
		deps.Logger.InfoContext(ctx, "sign-in rejected", "reason", "unknown_user")
		return fail("", "unknown_user")
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, deps.storeErr(err)
	}

	ok, err := deps.Hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return fail(user.ID, "hash_unreadable")
	}
	if !ok {
		deps.Logger.InfoContext(ctx, "sign-in rejected", "reason", "bad_password", "user_id", user.ID)
		return fail(user.ID, "bad_password")
	}

	refreshID, refreshSecret, refreshHash, err := deps.mintSecret()
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, deps.storeErr(err)
	}

	now := deps.Now()
	sess := store.Session{
		ID:        deps.NewID(),
		UserID:    user.ID,
		UserAgent: store.StringPtr(req.Meta.UserAgent),
		IP:        store.StringPtr(req.Meta.IP),
		CreatedAt: now,
		LastSeen:  now,
	}
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s := sess
		if err := tx.Sessions().Create(ctx, &s); err != nil {
			return err
		}
		return tx.RefreshTokens().Create(ctx, &store.RefreshToken{
			ID:        refreshID,
			SessionID: sess.ID,
			UserID:    user.ID,
			TokenHash: refreshHash,
			ExpiresAt: now.Add(deps.Policy.RefreshTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, deps.storeErr(err)
	}

	access, err := deps.IssueAccess(user.ID, sess.ID)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignInFailure)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SignInSuccess)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, user.ID, sess.ID, nil, nil)

	return &SignInResult{
		User: *user,
		Session: IssuedSession{
			SessionID:    sess.ID,
			AccessToken:  access,
			RefreshToken: token.Compose(refreshID, refreshSecret),
		},
	}, nil
}
