package store

import (
	"context"
	"time"
)

// Store runs functions inside a transaction.
//
// fn may be invoked more than once by optimistic implementations; it must not
// have side effects outside tx. If fn returns an error nothing it wrote is
// committed and the error is returned unchanged.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the capability handle for one transaction.
type Tx interface {
	Users() UserRepo
	Households() HouseholdRepo
	Sessions() SessionRepo
	RefreshTokens() RefreshTokenRepo
	SingleUseTokens() SingleUseTokenRepo
}

// UserRepo persists users.
type UserRepo interface {
	// Create fails with ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	// ByEmail expects a normalized address.
	ByEmail(ctx context.Context, email string) (*User, error)
	// MarkEmailVerified sets EmailVerifiedAt once; later calls keep the first value.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// HouseholdRepo persists households and memberships.
type HouseholdRepo interface {
	CreateWithOwner(ctx context.Context, h *Household, ownerUserID string) error
	MembersOf(ctx context.Context, householdID string) ([]HouseholdMember, error)
}

// SessionRepo persists sessions.
type SessionRepo interface {
	Create(ctx context.Context, s *Session) error
	ByID(ctx context.Context, id string) (*Session, error)
	// Touch refreshes device metadata and LastSeen. Nil metadata keeps the stored value.
	Touch(ctx context.Context, id string, userAgent, ip *string, lastSeen time.Time) error
	// Revoke sets RevokedAt if it is unset. Revoking twice is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	// ListActive returns unrevoked sessions, newest first.
	ListActive(ctx context.Context, userID string) ([]Session, error)
}

// RefreshTokenRepo persists refresh tokens.
type RefreshTokenRepo interface {
	Create(ctx context.Context, t *RefreshToken) error
	// ByID reads the token and guards it against concurrent modification for
	// the rest of the transaction.
	ByID(ctx context.Context, id string) (*RefreshToken, error)
	// MarkRotated revokes id and points it at its successor. It fails with
	// ErrConflict when id is already revoked.
	MarkRotated(ctx context.Context, id, replacedByID string, at time.Time) error
	RevokeAllForSession(ctx context.Context, sessionID string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}

// SingleUseTokenRepo persists verification and reset tokens.
type SingleUseTokenRepo interface {
	Create(ctx context.Context, t *SingleUseToken) error
	// ByID reads the token and guards it like RefreshTokenRepo.ByID.
	ByID(ctx context.Context, id string) (*SingleUseToken, error)
	// MarkUsed fails with ErrConflict when the token was already used.
	MarkUsed(ctx context.Context, id string, at time.Time) error
	// SupersedeOutstanding expires every unused, unexpired token of
	// (userID, purpose) at the given instant.
	SupersedeOutstanding(ctx context.Context, userID string, purpose Purpose, at time.Time) error
}
