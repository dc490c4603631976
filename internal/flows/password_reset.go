package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/token"
)

type ForgotPasswordResult struct {
	Sent bool
	// Token is empty unless Policy.ExposeTokens is set and a token was minted.
	Token string
}

type ResetPasswordResult struct {
	Reset bool
}

// RunForgotPassword mints and mails a RESET_PASSWORD token when email belongs
// to a user. The result is {Sent: true} whether or not it does.
func RunForgotPassword(ctx context.Context, email string, deps Deps) (*ForgotPasswordResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = store.NormalizeEmail(email)
	if err := deps.validateEmail(email); err != nil {
		return nil, err
	}
	sent := &ForgotPasswordResult{Sent: true}

	var user *store.User
	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().ByEmail(ctx, email)
		user = u
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		deps.Logger.WarnContext(ctx, "password reset requested for unknown email")
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", nil, reason("unknown_email"))
		return sent, nil
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	now := deps.Now()
	if deps.AllowResetRequest != nil {
		allowed, err := deps.AllowResetRequest(ctx, email, now)
		if err != nil {
			deps.Logger.WarnContext(ctx, "password reset limiter unavailable", "error", err)
		} else if !allowed {
			deps.EmitRateLimit(ctx, "password_reset_request", func() map[string]string {
				return map[string]string{"user_id": user.ID}
			})
			return sent, nil
		}
	}

	id, secret, hash, err := deps.mintSecret()
	if err != nil {
		return nil, deps.storeErr(err)
	}
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SingleUseTokens().SupersedeOutstanding(ctx, user.ID, store.PurposeResetPassword, now); err != nil {
			return err
		}
		return tx.SingleUseTokens().Create(ctx, &store.SingleUseToken{
			ID:        id,
			UserID:    user.ID,
			Purpose:   store.PurposeResetPassword,
			TokenHash: hash,
			ExpiresAt: now.Add(deps.Policy.ResetTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, deps.storeErr(err)
	}

	raw := token.Compose(id, secret)
	deps.Deliver(ctx, Mail{Kind: MailPasswordReset, UserID: user.ID, To: user.Email, Name: user.Name, Token: raw})

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, user.ID, "", nil, nil)

	if deps.Policy.ExposeTokens {
		sent.Token = raw
	}
	return sent, nil
}

// RunResetPassword consumes a RESET_PASSWORD token, replaces the password
// hash and revokes every session and refresh token of the user.
func RunResetPassword(ctx context.Context, raw, newPassword string, deps Deps) (*ResetPasswordResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	tokenID, secret, err := token.Parse(raw)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		return nil, deps.Errors.MalformedToken
	}
	if err := deps.validatePassword(newPassword); err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		return nil, err
	}
	newHash, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		return nil, deps.storeErr(err)
	}

	now := deps.Now()
	var (
		userID string
		why    string
	)
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		userID, why = "", ""

		rec, err := tx.SingleUseTokens().ByID(ctx, tokenID)
		if errors.Is(err, store.ErrNotFound) {
			why = "not_found"
			return nil
		}
		if err != nil {
			return err
		}
		userID = rec.UserID
		switch {
		case rec.Purpose != store.PurposeResetPassword:
			why = "wrong_purpose"
		case rec.Used():
			why = "used"
		case !now.Before(rec.ExpiresAt):
			why = "expired"
		}
		if why != "" {
			return nil
		}
		ok, err := deps.Hasher.Verify(secret, rec.TokenHash)
		if err != nil {
			return err
		}
		if !ok {
			why = "secret_mismatch"
			return nil
		}

		if err := tx.SingleUseTokens().MarkUsed(ctx, rec.ID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				why = "used"
				return nil
			}
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, rec.UserID, newHash); err != nil {
			return err
		}
		if err := tx.Sessions().RevokeAllForUser(ctx, rec.UserID, now); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllForUser(ctx, rec.UserID, now)
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		return nil, deps.storeErr(err)
	}
	if why != "" {
		deps.MetricInc(deps.Metrics.PasswordResetFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, "", deps.Errors.InvalidResetToken, reason(why))
		return nil, deps.Errors.InvalidResetToken
	}

	deps.Logger.InfoContext(ctx, "password reset; all sessions revoked", "user_id", userID)
	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, userID, "", nil, nil)
	return &ResetPasswordResult{Reset: true}, nil
}
