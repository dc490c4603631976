package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/token"
)

// VerifyEmailResult reports the state after a verification attempt. Reused is
// set when the token had already been consumed.
type VerifyEmailResult struct {
	UserID   string
	Verified bool
	Reused   bool
}

type ResendResult struct {
	Sent bool
	// Token is empty unless Policy.ExposeTokens is set.
	Token string
}

type verifyOutcome int

const (
	verifyOK verifyOutcome = iota
	verifyInvalid
	verifyForeign
	verifyReused
	verifyMismatch
)

// RunVerifyEmail consumes a VERIFY_EMAIL token. When userID is non-empty the
// token must belong to that user.
//
// A token that was already used is an idempotent success flagged Reused. No
// state changes on that path, including when a concurrent consumer wins the
// MarkUsed race.
func RunVerifyEmail(ctx context.Context, userID, raw string, deps Deps) (*VerifyEmailResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	tokenID, secret, err := token.Parse(raw)
	if err != nil {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		return nil, deps.Errors.MalformedToken
	}

	now := deps.Now()
	var (
		outcome verifyOutcome
		res     VerifyEmailResult
	)
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		outcome, res = verifyOK, VerifyEmailResult{}

		rec, err := tx.SingleUseTokens().ByID(ctx, tokenID)
		if errors.Is(err, store.ErrNotFound) {
			outcome = verifyInvalid
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Purpose != store.PurposeVerifyEmail {
			outcome = verifyInvalid
			return nil
		}
		res.UserID = rec.UserID
		if userID != "" && rec.UserID != userID {
			outcome = verifyForeign
			return nil
		}

		reused := func() error {
			u, err := tx.Users().ByID(ctx, rec.UserID)
			if err != nil {
				return err
			}
			outcome = verifyReused
			res.Verified, res.Reused = u.EmailVerified(), true
			return nil
		}

		if rec.Used() {
			return reused()
		}
		if !now.Before(rec.ExpiresAt) {
			outcome = verifyInvalid
			return nil
		}
		ok, err := deps.Hasher.Verify(secret, rec.TokenHash)
		if err != nil {
			return err
		}
		if !ok {
			outcome = verifyMismatch
			return nil
		}

		if err := tx.SingleUseTokens().MarkUsed(ctx, rec.ID, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return reused()
			}
			return err
		}
		if err := tx.Users().MarkEmailVerified(ctx, rec.UserID, now); err != nil {
			return err
		}
		res.Verified = true
		return nil
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		return nil, deps.storeErr(err)
	}

	switch outcome {
	case verifyInvalid:
		return nil, deps.verifyFailed(ctx, res.UserID, deps.Errors.InvalidOrExpiredToken, "invalid_or_expired")
	case verifyForeign:
		return nil, deps.verifyFailed(ctx, userID, deps.Errors.Forbidden, "foreign_token")
	case verifyMismatch:
		return nil, deps.verifyFailed(ctx, res.UserID, deps.Errors.Forbidden, "secret_mismatch")
	case verifyReused:
		deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
		deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, true, res.UserID, "", nil, reason("reused"))
		return &res, nil
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, true, res.UserID, "", nil, nil)
	deps.Logger.InfoContext(ctx, "email verified", "user_id", res.UserID)
	return &res, nil
}

func (d Deps) verifyFailed(ctx context.Context, userID string, err error, why string) error {
	d.MetricInc(d.Metrics.EmailVerificationFailure)
	d.EmitAudit(ctx, d.Events.EmailVerificationConfirm, false, userID, "", err, reason(why))
	return err
}

// RunResendVerification mints a fresh VERIFY_EMAIL token for an unverified
// user, superseding any outstanding one, and mails it.
func RunResendVerification(ctx context.Context, userID string, deps Deps) (*ResendResult, error) {
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
	if user.EmailVerified() {
		return nil, deps.Errors.AlreadyVerified
	}

	now := deps.Now()
	if deps.AcquireResendSlot != nil {
		if err := deps.AcquireResendSlot(ctx, user.ID, now); err != nil {
			return nil, err
		}
	}
	release := func() {
		if deps.ReleaseResendSlot != nil {
			deps.ReleaseResendSlot(ctx, user.ID)
		}
	}

	id, secret, hash, err := deps.mintSecret()
	if err != nil {
		release()
		return nil, deps.storeErr(err)
	}
	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SingleUseTokens().SupersedeOutstanding(ctx, user.ID, store.PurposeVerifyEmail, now); err != nil {
			return err
		}
		return tx.SingleUseTokens().Create(ctx, &store.SingleUseToken{
			ID:        id,
			UserID:    user.ID,
			Purpose:   store.PurposeVerifyEmail,
			TokenHash: hash,
			ExpiresAt: now.Add(deps.Policy.VerificationTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		release()
		return nil, deps.storeErr(err)
	}

	raw := token.Compose(id, secret)
	deps.Deliver(ctx, Mail{Kind: MailVerification, UserID: user.ID, To: user.Email, Name: user.Name, Token: raw})

	deps.MetricInc(deps.Metrics.EmailVerificationRequest)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationRequest, true, user.ID, "", nil, nil)

	res := &ResendResult{Sent: true}
	if deps.Policy.ExposeTokens {
		res.Token = raw
	}
	return res, nil
}
