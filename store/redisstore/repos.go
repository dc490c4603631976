package redisstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/finauth/store"
)

type userRepo struct{ t *tx }

func (r userRepo) Create(ctx context.Context, u *store.User) error {
	emailKey := r.t.s.emailKey(u.Email)
	taken, err := r.t.exists(ctx, emailKey)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrDuplicate
	}
	if err := r.t.putJSON(r.t.s.userKey(u.ID), u, -1); err != nil {
		return err
	}
	r.t.putRaw(emailKey, []byte(u.ID), -1)
	return nil
}

func (r userRepo) ByID(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	if err := r.t.getJSON(ctx, r.t.s.userKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r userRepo) ByEmail(ctx context.Context, email string) (*store.User, error) {
	id, err := r.t.getString(ctx, r.t.s.emailKey(email))
	if err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

func (r userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	u, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if u.EmailVerifiedAt != nil {
		return nil
	}
	u.EmailVerifiedAt = store.TimePtr(at)
	return r.t.putJSON(r.t.s.userKey(id), u, -1)
}

func (r userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	u, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return r.t.putJSON(r.t.s.userKey(id), u, -1)
}

type householdRepo struct{ t *tx }

func (r householdRepo) CreateWithOwner(ctx context.Context, h *store.Household, ownerUserID string) error {
	key := r.t.s.householdKey(h.ID)
	taken, err := r.t.exists(ctx, key)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrDuplicate
	}
	if err := r.t.putJSON(key, h, -1); err != nil {
		return err
	}
	r.t.hset(r.t.s.householdMembersKey(h.ID), ownerUserID, string(store.RoleOwner))
	return nil
}

func (r householdRepo) MembersOf(ctx context.Context, householdID string) ([]store.HouseholdMember, error) {
	raw, err := r.t.hgetall(ctx, r.t.s.householdMembersKey(householdID))
	if err != nil {
		return nil, err
	}
	out := make([]store.HouseholdMember, 0, len(raw))
	for userID, role := range raw {
		out = append(out, store.HouseholdMember{
			HouseholdID: householdID,
			UserID:      userID,
			Role:        store.HouseholdRole(role),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type sessionRepo struct{ t *tx }

func (r sessionRepo) Create(ctx context.Context, s *store.Session) error {
	if err := r.t.putJSON(r.t.s.sessionKey(s.ID), s, -1); err != nil {
		return err
	}
	r.t.addMember(r.t.s.userSessionsKey(s.UserID), s.ID)
	return nil
}

func (r sessionRepo) ByID(ctx context.Context, id string) (*store.Session, error) {
	var s store.Session
	if err := r.t.getJSON(ctx, r.t.s.sessionKey(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r sessionRepo) Touch(ctx context.Context, id string, userAgent, ip *string, lastSeen time.Time) error {
	s, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if userAgent != nil {
		s.UserAgent = userAgent
	}
	if ip != nil {
		s.IP = ip
	}
	s.LastSeen = lastSeen
	return r.t.putJSON(r.t.s.sessionKey(id), s, -1)
}

func (r sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	s, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if s.RevokedAt != nil {
		return nil
	}
	s.RevokedAt = store.TimePtr(at)
	return r.t.putJSON(r.t.s.sessionKey(id), s, -1)
}

func (r sessionRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	ids, err := r.t.members(ctx, r.t.s.userSessionsKey(userID))
	if err != nil {
		return err
	}
	for _, id := range ids {
		err := r.Revoke(ctx, id, at)
		if errors.Is(err, store.ErrNotFound) {
			r.t.removeMember(r.t.s.userSessionsKey(userID), id)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r sessionRepo) ListActive(ctx context.Context, userID string) ([]store.Session, error) {
	ids, err := r.t.members(ctx, r.t.s.userSessionsKey(userID))
	if err != nil {
		return nil, err
	}
	out := make([]store.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.ByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Active() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type refreshRepo struct{ t *tx }

func (r refreshRepo) Create(ctx context.Context, rt *store.RefreshToken) error {
	ttl := r.t.s.tokenTTL(rt.CreatedAt, rt.ExpiresAt)
	if err := r.t.putJSON(r.t.s.refreshKey(rt.ID), rt, ttl); err != nil {
		return err
	}
	r.t.addMember(r.t.s.sessionRefreshKey(rt.SessionID), rt.ID)
	return nil
}

func (r refreshRepo) ByID(ctx context.Context, id string) (*store.RefreshToken, error) {
	var rt store.RefreshToken
	if err := r.t.getJSON(ctx, r.t.s.refreshKey(id), &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r refreshRepo) MarkRotated(ctx context.Context, id, replacedByID string, at time.Time) error {
	rt, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if rt.RevokedAt != nil {
		return store.ErrConflict
	}
	rt.RevokedAt = store.TimePtr(at)
	rt.ReplacedByID = &replacedByID
	return r.t.putJSON(r.t.s.refreshKey(id), rt, 0)
}

func (r refreshRepo) RevokeAllForSession(ctx context.Context, sessionID string, at time.Time) error {
	indexKey := r.t.s.sessionRefreshKey(sessionID)
	ids, err := r.t.members(ctx, indexKey)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rt, err := r.ByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.t.removeMember(indexKey, id)
			continue
		}
		if err != nil {
			return err
		}
		if rt.RevokedAt != nil {
			continue
		}
		rt.RevokedAt = store.TimePtr(at)
		if err := r.t.putJSON(r.t.s.refreshKey(id), rt, 0); err != nil {
			return err
		}
	}
	return nil
}

func (r refreshRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	sessionIDs, err := r.t.members(ctx, r.t.s.userSessionsKey(userID))
	if err != nil {
		return err
	}
	for _, sid := range sessionIDs {
		if err := r.RevokeAllForSession(ctx, sid, at); err != nil {
			return err
		}
	}
	return nil
}

type singleUseRepo struct{ t *tx }

func (r singleUseRepo) Create(ctx context.Context, tok *store.SingleUseToken) error {
	ttl := r.t.s.tokenTTL(tok.CreatedAt, tok.ExpiresAt)
	if err := r.t.putJSON(r.t.s.singleUseKey(tok.ID), tok, ttl); err != nil {
		return err
	}
	r.t.addMember(r.t.s.userSingleUseKey(tok.UserID, tok.Purpose), tok.ID)
	return nil
}

func (r singleUseRepo) ByID(ctx context.Context, id string) (*store.SingleUseToken, error) {
	var tok store.SingleUseToken
	if err := r.t.getJSON(ctx, r.t.s.singleUseKey(id), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (r singleUseRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	tok, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	if tok.UsedAt != nil {
		return store.ErrConflict
	}
	tok.UsedAt = store.TimePtr(at)
	return r.t.putJSON(r.t.s.singleUseKey(id), tok, 0)
}

func (r singleUseRepo) SupersedeOutstanding(ctx context.Context, userID string, purpose store.Purpose, at time.Time) error {
	indexKey := r.t.s.userSingleUseKey(userID, purpose)
	ids, err := r.t.members(ctx, indexKey)
	if err != nil {
		return err
	}
	for _, id := range ids {
		tok, err := r.ByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			r.t.removeMember(indexKey, id)
			continue
		}
		if err != nil {
			return err
		}
		if tok.UsedAt != nil || !at.Before(tok.ExpiresAt) {
			continue
		}
		tok.ExpiresAt = at
		if err := r.t.putJSON(r.t.s.singleUseKey(id), tok, 0); err != nil {
			return err
		}
	}
	return nil
}
