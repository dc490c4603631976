package finauth

import "time"

// SignUpInput is the payload of [Engine.SignUp].
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// SignInInput is the payload of [Engine.SignIn].
type SignInInput struct {
	Email    string
	Password string
}

// RequestMeta is the optional device metadata of a request. Empty fields are
// filled from [WithUserAgent] and [WithClientIP] when present on the context,
// and otherwise treated as absent.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// TokenPair is an access token with the refresh token that renews it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// UserView is the caller-facing projection of a user. It never carries the
// password hash.
type UserView struct {
	ID              string
	Email           string
	Name            string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

type SignUpResult struct {
	User        UserView
	HouseholdID string
	Tokens      TokenPair
	// VerificationToken is set only outside ProductionMode.
	VerificationToken string
}

type SignInResult struct {
	User   UserView
	Tokens TokenPair
}

// VerifyEmailResult reports the verification state after consuming a token.
// Reused is true when the token had already been consumed; nothing changed.
type VerifyEmailResult struct {
	UserID   string
	Verified bool
	Reused   bool
}

type ResendResult struct {
	Sent  bool
	Token string
}

type ForgotPasswordResult struct {
	Sent  bool
	Token string
}

type ResetPasswordResult struct {
	Reset bool
}

// SessionSummary describes one active session of a user.
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

// Principal is the identity behind a valid access token whose session is
// still active.
type Principal struct {
	UserID    string
	SessionID string
}
