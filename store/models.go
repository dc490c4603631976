package store

import (
	"strings"
	"time"
)

// User is an account holder. Email is stored lowercased.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Name            string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

// EmailVerified reports whether the address was confirmed.
func (u *User) EmailVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// Household groups users sharing finances. Sign-up creates one per user.
type Household struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// HouseholdRole is a member's role inside a household.
type HouseholdRole string

// RoleOwner is the role granted to the user who created the household.
const RoleOwner HouseholdRole = "owner"

// HouseholdMember links a user to a household.
type HouseholdMember struct {
	HouseholdID string
	UserID      string
	Role        HouseholdRole
}

// Session is one signed-in device. It is active while RevokedAt is nil.
type Session struct {
	ID        string
	UserID    string
	UserAgent *string
	IP        *string
	CreatedAt time.Time
	LastSeen  time.Time
	RevokedAt *time.Time
}

// Active reports whether the session has not been revoked.
func (s *Session) Active() bool {
	return s != nil && s.RevokedAt == nil
}

// RefreshToken is one link in a session's rotation chain. TokenHash is the
// hash of the secret half of the presented token.
type RefreshToken struct {
	ID           string
	SessionID    string
	UserID       string
	TokenHash    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
	ReplacedByID *string
}

// Revoked reports whether the token was revoked or rotated.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Purpose tells single-use tokens apart.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "VERIFY_EMAIL"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeVerifyEmail || p == PurposeResetPassword
}

// SingleUseToken backs email verification and password reset links.
type SingleUseToken struct {
	ID        string
	UserID    string
	Purpose   Purpose
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    *time.Time
}

// Used reports whether the token was consumed.
func (t *SingleUseToken) Used() bool {
	return t.UsedAt != nil
}

// NormalizeEmail lowercases and trims an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringPtr returns nil for the empty string, &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns &t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
