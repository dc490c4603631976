package finauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrMalformedToken reports a token that is not "{id}.{secret}".
	ErrMalformedToken = errors.New("malformed token")

	// ErrEmailAlreadyRegistered is returned by SignUp for a taken email.
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrAlreadyVerified is returned by ResendVerification for a verified user.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrInvalidCredentials is returned by SignIn for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken is returned when the refresh token does not exist.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenRevoked is returned when a revoked or rotated token is
	// presented. The session has been revoked.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	// ErrRefreshTokenExpired is returned when the refresh token is past expiresAt.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenReuseDetected is returned when the refresh secret does
	// not match. The session has been revoked.
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrUnauthorized reports a missing, invalid or revoked access credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidResetToken covers every reset token failure after parsing.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrForbidden reports a token presented by a user it does not belong to.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidOrExpiredToken is returned by email verification.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrUserNotFound is returned by owner-scoped user lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned for a missing or foreign session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVerificationCooldown is returned by ResendVerification inside the
	// cooldown window. The error carries RetryAfter; see [RetryAfter].
	ErrVerificationCooldown = errors.New("verification email recently sent")

	// ErrStoreUnavailable wraps store, limiter and hashing failures.
	ErrStoreUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned by a zero or half-built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind classifies engine errors for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrValidation, KindValidation},
	{ErrMalformedToken, KindValidation},
	{ErrEmailAlreadyRegistered, KindConflict},
	{ErrAlreadyVerified, KindConflict},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrInvalidRefreshToken, KindUnauthorized},
	{ErrRefreshTokenRevoked, KindUnauthorized},
	{ErrRefreshTokenExpired, KindUnauthorized},
	{ErrRefreshTokenReuseDetected, KindUnauthorized},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidResetToken, KindUnauthorized},
	{ErrForbidden, KindForbidden},
	{ErrInvalidOrExpiredToken, KindForbidden},
	{ErrUserNotFound, KindNotFound},
	{ErrSessionNotFound, KindNotFound},
	{ErrVerificationCooldown, KindRateLimited},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}

// RetryAfterError decorates a rate-limit error with the wait before the next
// attempt can succeed.
type RetryAfterError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter extracts the wait carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter, true
	}
	return 0, false
}
