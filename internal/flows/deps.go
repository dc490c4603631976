package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/finauth/password"
	"github.com/MrEthical07/finauth/store"
)

// Deps is the dependency set shared by every flow. The root engine builds it
// once and delegates request methods to the matching Run function.
type Deps struct {
	Store  store.Store
	Hasher password.Hasher
	Dummy  *password.Dummy
	Logger *slog.Logger

	Now       func() time.Time
	NewID     func() string
	NewSecret func() (string, error)

	IssueAccess  func(userID, sessionID string) (string, error)
	VerifyAccess func(token string) (userID, sessionID string, err error)

	// AcquireResendSlot claims the user's verification-mail slot at now. It
	// returns nil or an error already mapped for callers.
	AcquireResendSlot func(ctx context.Context, userID string, now time.Time) error
	ReleaseResendSlot func(ctx context.Context, userID string)
	// AllowResetRequest reports whether another reset may be minted for email.
	AllowResetRequest func(ctx context.Context, email string, now time.Time) (bool, error)

	// Deliver sends mail best effort. It never fails the calling flow.
	Deliver func(ctx context.Context, m Mail)

	MetricInc     func(int)
	EmitAudit     func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)
	EmitRateLimit func(ctx context.Context, scope string, meta func() map[string]string)

	Policy  Policy
	Metrics Metrics
	Events  Events
	Errors  Errors
}

// Policy carries the immutable tunables flows need.
type Policy struct {
	MinPasswordLength int
	MaxPasswordBytes  int
	RefreshTTL        time.Duration
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	// ExposeTokens returns raw verification and reset tokens in results.
	ExposeTokens      bool
}

// Metrics maps flow outcomes onto the engine's metric ids.
type Metrics struct {
	SignUpSuccess            int
	SignUpFailure            int
	SignUpDuplicate          int
	SignInSuccess            int
	SignInFailure            int
	RefreshSuccess           int
	RefreshFailure           int
	RefreshReuseDetected     int
	EmailVerificationRequest int
	EmailVerificationSuccess int
	EmailVerificationFailure int
	PasswordResetRequest     int
	PasswordResetSuccess     int
	PasswordResetFailure     int
	SessionRevoked           int
	AuthenticateSuccess      int
	AuthenticateFailure      int
}

// Events maps flow outcomes onto audit event names.
type Events struct {
	SignUpSuccess            string
	SignUpDuplicate          string
	SignInSuccess            string
	SignInFailure            string
	RefreshSuccess           string
	RefreshFailure           string
	RefreshReuseDetected     string
	EmailVerificationConfirm string
	EmailVerificationRequest string
	PasswordResetRequest     string
	PasswordResetConfirm     string
	SessionRevoked           string
}

// Errors are the root sentinels flows return.
type Errors struct {
	EngineNotReady            error
	Validation                error
	MalformedToken            error
	EmailAlreadyRegistered    error
	AlreadyVerified           error
	InvalidCredentials        error
	InvalidRefreshToken       error
	RefreshTokenRevoked       error
	RefreshTokenExpired       error
	RefreshTokenReuseDetected error
	Unauthorized              error
	InvalidResetToken         error
	Forbidden                 error
	InvalidOrExpiredToken     error
	UserNotFound              error
	SessionNotFound           error
	StoreUnavailable          error
}

// RequestMeta is the optional device metadata of a request. Empty means absent.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// IssuedSession is a freshly created or rotated session credential set.
type IssuedSession struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// MailKind selects the template of an outgoing mail.
type MailKind int

const (
	MailVerification MailKind = iota + 1
	MailPasswordReset
)

// Mail is a request to deliver a token link to a user.
type Mail struct {
	Kind   MailKind
	UserID string
	To     string
	Name   string
	Token  string
}

func (d Deps) ready() bool {
	return d.Store != nil && d.Hasher != nil && d.Now != nil && d.NewID != nil &&
		d.NewSecret != nil && d.IssueAccess != nil
}

func (d *Deps) normalize() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if d.EmitRateLimit == nil {
		d.EmitRateLimit = func(context.Context, string, func() map[string]string) {}
	}
	if d.Deliver == nil {
		d.Deliver = func(context.Context, Mail) {}
	}
}

// storeErr maps a store or hashing failure to the unavailable sentinel while
// keeping context cancellation visible.
func (d Deps) storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
}

// mintSecret returns a fresh token id, its secret half and the stored hash.
func (d Deps) mintSecret() (id, secret, hash string, err error) {
	secret, err = d.NewSecret()
	if err != nil {
		return "", "", "", err
	}
	hash, err = d.Hasher.Hash(secret)
	if err != nil {
		return "", "", "", err
	}
	return d.NewID(), secret, hash, nil
}

func reason(r string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": r}
	}
}
