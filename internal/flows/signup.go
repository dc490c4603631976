package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/finauth/store"
	"github.com/MrEthical07/finauth/token"
)

type SignUpRequest struct {
	Email    string
	Password string
	Name     string
	Meta     RequestMeta
}

type SignUpResult struct {
	User        store.User
	HouseholdID string
	Session     IssuedSession
	// VerificationToken is empty unless Policy.ExposeTokens is set.
	VerificationToken string
}

// householdName derives the default household name from the user's name.
func householdName(name string) string {
	if name == "" {
		return "Household"
	}
	return name + "'s Household"
}

// RunSignUp creates the user, their household, a first session and a
// verification token in one transaction, then mails the verification link.
func RunSignUp(ctx context.Context, req SignUpRequest, deps Deps) (*SignUpResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email := store.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if err := deps.validateEmail(email); err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, err
	}
	if err := deps.validatePassword(req.Password); err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, err
	}

	duplicate := func() (*SignUpResult, error) {
		deps.MetricInc(deps.Metrics.SignUpDuplicate)
		deps.EmitAudit(ctx, deps.Events.SignUpDuplicate, false, "", "", deps.Errors.EmailAlreadyRegistered, nil)
		return nil, deps.Errors.EmailAlreadyRegistered
	}

	err := deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Users().ByEmail(ctx, email)
		return err
	})
	switch {
	case err == nil:
		return duplicate()
	case !errors.Is(err, store.ErrNotFound):
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, deps.storeErr(err)
	}

	passwordHash, err := deps.Hasher.Hash(req.Password)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, deps.storeErr(err)
	}
	refreshID, refreshSecret, refreshHash, err := deps.mintSecret()
	if err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, deps.storeErr(err)
	}
	verifyID, verifySecret, verifyHash, err := deps.mintSecret()
	if err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, deps.storeErr(err)
	}

	now := deps.Now()
	user := store.User{
		ID:           deps.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    now,
	}
	household := store.Household{ID: deps.NewID(), Name: householdName(name), CreatedAt: now}
	sess := store.Session{
		ID:        deps.NewID(),
		UserID:    user.ID,
		UserAgent: store.StringPtr(req.Meta.UserAgent),
		IP:        store.StringPtr(req.Meta.IP),
		CreatedAt: now,
		LastSeen:  now,
	}

	err = deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u := user
		if err := tx.Users().Create(ctx, &u); err != nil {
			return err
		}
		h := household
		if err := tx.Households().CreateWithOwner(ctx, &h, user.ID); err != nil {
			return err
		}
		s := sess
		if err := tx.Sessions().Create(ctx, &s); err != nil {
			return err
		}
		if err := tx.RefreshTokens().Create(ctx, &store.RefreshToken{
			ID:        refreshID,
			SessionID: sess.ID,
			UserID:    user.ID,
			TokenHash: refreshHash,
			ExpiresAt: now.Add(deps.Policy.RefreshTTL),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.SingleUseTokens().Create(ctx, &store.SingleUseToken{
			ID:        verifyID,
			UserID:    user.ID,
			Purpose:   store.PurposeVerifyEmail,
			TokenHash: verifyHash,
			ExpiresAt: now.Add(deps.Policy.VerificationTTL),
			CreatedAt: now,
		})
	})
	if errors.Is(err, store.ErrDuplicate) {
		return duplicate()
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, deps.storeErr(err)
	}

	access, err := deps.IssueAccess(user.ID, sess.ID)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignUpFailure)
		return nil, err
	}

	// The sign-up mail is the first send of the resend cooldown. A held slot
	// or an unreachable limiter never fails the sign-up.
	if deps.AcquireResendSlot != nil {
		if err := deps.AcquireResendSlot(ctx, user.ID, now); err != nil {
			deps.Logger.WarnContext(ctx, "verification cooldown not claimed at sign-up",
				"user_id", user.ID, "error", err)
		}
	}
	verificationToken := token.Compose(verifyID, verifySecret)
	deps.Deliver(ctx, Mail{
		Kind:   MailVerification,
		UserID: user.ID,
		To:     user.Email,
		Name:   user.Name,
		Token:  verificationToken,
	})

	deps.MetricInc(deps.Metrics.SignUpSuccess)
	deps.EmitAudit(ctx, deps.Events.SignUpSuccess, true, user.ID, sess.ID, nil, nil)

	res := &SignUpResult{
		User:        user,
		HouseholdID: household.ID,
		Session: IssuedSession{
			SessionID:    sess.ID,
			AccessToken:  access,
			RefreshToken: token.Compose(refreshID, refreshSecret),
		},
	}
	if deps.Policy.ExposeTokens {
		res.VerificationToken = verificationToken
	}
	return res, nil
}
