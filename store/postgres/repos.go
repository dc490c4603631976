package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/finauth/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	q querier
}

func (t *tx) Users() store.UserRepo                     { return userRepo{t.q} }
func (t *tx) Households() store.HouseholdRepo           { return householdRepo{t.q} }
func (t *tx) Sessions() store.SessionRepo               { return sessionRepo{t.q} }
func (t *tx) RefreshTokens() store.RefreshTokenRepo     { return refreshRepo{t.q} }
func (t *tx) SingleUseTokens() store.SingleUseTokenRepo { return singleUseRepo{t.q} }

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// affectOne runs an update and reports ErrNotFound or missErr when no row
// matched, depending on whether the id exists at all.
func affectOne(ctx context.Context, q querier, table, id string, missErr error, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return missErr
}

type userRepo struct{ q querier }

const userColumns = `id, email, password_hash, name, email_verified_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var (
		u        store.User
		verified sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &verified, &u.CreatedAt); err != nil {
		return nil, classify(err)
	}
	u.EmailVerifiedAt = timePtr(verified)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (r userRepo) Create(ctx context.Context, u *store.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.Name, nullTime(u.EmailVerifiedAt), u.CreatedAt,
	)
	return classify(err)
}

func (r userRepo) ByID(ctx context.Context, id string) (*store.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r userRepo) ByEmail(ctx context.Context, email string) (*store.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	err := affectOne(ctx, r.q, "users", id, nil,
		`UPDATE users SET email_verified_at = $2 WHERE id = $1 AND email_verified_at IS NULL`, id, at)
	return err
}

func (r userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return affectOne(ctx, r.q, "users", id, store.ErrNotFound,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

type householdRepo struct{ q querier }

func (r householdRepo) CreateWithOwner(ctx context.Context, h *store.Household, ownerUserID string) error {
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO households (id, name, created_at) VALUES ($1, $2, $3)`,
		h.ID, h.Name, h.CreatedAt,
	); err != nil {
		return classify(err)
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES ($1, $2, $3)`,
		h.ID, ownerUserID, string(store.RoleOwner),
	)
	return classify(err)
}

func (r householdRepo) MembersOf(ctx context.Context, householdID string) ([]store.HouseholdMember, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT household_id, user_id, role FROM household_members WHERE household_id = $1 ORDER BY user_id`,
		householdID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.HouseholdMember
	for rows.Next() {
		var (
			m    store.HouseholdMember
			role string
		)
		if err := rows.Scan(&m.HouseholdID, &m.UserID, &role); err != nil {
			return nil, classify(err)
		}
		m.Role = store.HouseholdRole(role)
		out = append(out, m)
	}
	return out, classify(rows.Err())
}

type sessionRepo struct{ q querier }

const sessionColumns = `id, user_id, user_agent, ip, created_at, last_seen, revoked_at`

func scanSession(row interface{ Scan(...any) error }) (*store.Session, error) {
	var (
		s       store.Session
		ua, ip  sql.NullString
		revoked sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &ua, &ip, &s.CreatedAt, &s.LastSeen, &revoked); err != nil {
		return nil, classify(err)
	}
	s.UserAgent = stringPtr(ua)
	s.IP = stringPtr(ip)
	s.RevokedAt = timePtr(revoked)
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastSeen = s.LastSeen.UTC()
	return &s, nil
}

func (r sessionRepo) Create(ctx context.Context, s *store.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, nullString(s.UserAgent), nullString(s.IP), s.CreatedAt, s.LastSeen, nullTime(s.RevokedAt),
	)
	return classify(err)
}

func (r sessionRepo) ByID(ctx context.Context, id string) (*store.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

func (r sessionRepo) Touch(ctx context.Context, id string, userAgent, ip *string, lastSeen time.Time) error {
	return affectOne(ctx, r.q, "sessions", id, store.ErrNotFound,
		`UPDATE sessions
		 SET user_agent = COALESCE($2, user_agent), ip = COALESCE($3, ip), last_seen = $4
		 WHERE id = $1`,
		id, nullString(userAgent), nullString(ip), lastSeen,
	)
}

func (r sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	return affectOne(ctx, r.q, "sessions", id, nil,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
}

func (r sessionRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	return classify(err)
}

func (r sessionRepo) ListActive(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND revoked_at IS NULL
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, classify(rows.Err())
}

type refreshRepo struct{ q querier }

const refreshColumns = `id, session_id, user_id, token_hash, expires_at, created_at, revoked_at, replaced_by_id`

func (r refreshRepo) Create(ctx context.Context, t *store.RefreshToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.SessionID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt, nullTime(t.RevokedAt), nullString(t.ReplacedByID),
	)
	return classify(err)
}

func (r refreshRepo) ByID(ctx context.Context, id string) (*store.RefreshToken, error) {
	var (
		t        store.RefreshToken
		revoked  sql.NullTime
		replaced sql.NullString
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1 FOR UPDATE`, id,
	).Scan(&t.ID, &t.SessionID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &revoked, &replaced)
	if err != nil {
		return nil, classify(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.RevokedAt = timePtr(revoked)
	t.ReplacedByID = stringPtr(replaced)
	return &t, nil
}

func (r refreshRepo) MarkRotated(ctx context.Context, id, replacedByID string, at time.Time) error {
	return affectOne(ctx, r.q, "refresh_tokens", id, store.ErrConflict,
		`UPDATE refresh_tokens SET revoked_at = $2, replaced_by_id = $3 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, replacedByID,
	)
}

func (r refreshRepo) RevokeAllForSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE session_id = $1 AND revoked_at IS NULL`, sessionID, at)
	return classify(err)
}

func (r refreshRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	return classify(err)
}

type singleUseRepo struct{ q querier }

const singleUseColumns = `id, user_id, purpose, token_hash, expires_at, created_at, used_at`

func (r singleUseRepo) Create(ctx context.Context, t *store.SingleUseToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO single_use_tokens (`+singleUseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, string(t.Purpose), t.TokenHash, t.ExpiresAt, t.CreatedAt, nullTime(t.UsedAt),
	)
	return classify(err)
}

func (r singleUseRepo) ByID(ctx context.Context, id string) (*store.SingleUseToken, error) {
	var (
		t       store.SingleUseToken
		purpose string
		used    sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT `+singleUseColumns+` FROM single_use_tokens WHERE id = $1 FOR UPDATE`, id,
	).Scan(&t.ID, &t.UserID, &purpose, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &used)
	if err != nil {
		return nil, classify(err)
	}
	t.Purpose = store.Purpose(purpose)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UsedAt = timePtr(used)
	return &t, nil
}

func (r singleUseRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return affectOne(ctx, r.q, "single_use_tokens", id, store.ErrConflict,
		`UPDATE single_use_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at)
}

func (r singleUseRepo) SupersedeOutstanding(ctx context.Context, userID string, purpose store.Purpose, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE single_use_tokens SET expires_at = $3
		 WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > $3`,
		userID, string(purpose), at,
	)
	return classify(err)
}
