package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserStore persists users and the Postgres fallback for refresh sessions.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, name, COALESCE(email, ''), COALESCE(password_hash, ''), moderator, locked, created_at, last_seen_at`

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Moderator, &u.Locked, &u.CreatedAt, &u.LastSeenAt)
	return u, err
}

// CreateUser inserts a registered user. Email uniqueness is enforced by
// the schema.
func (s *UserStore) CreateUser(ctx context.Context, name, email, passwordHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		RETURNING `+userCols,
		name, email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// CreateAnonymous inserts a user row for an unauthenticated visitor so
// version authorship always has a referent. The reaper removes these once
// inactive and contribution-less.
func (s *UserStore) CreateAnonymous(ctx context.Context, name string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name) VALUES ($1)
		RETURNING `+userCols, name)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("create anonymous user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id int64) (User, bool, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, true, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return u, true, nil
}

func (s *UserStore) TouchLastSeen(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen_at=NOW() WHERE id=$1`, id); err != nil {
		return fmt.Errorf("touch user %d: %w", id, err)
	}
	return nil
}

func (s *UserStore) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, passwordHash); err != nil {
		return fmt.Errorf("set password %d: %w", id, err)
	}
	return nil
}

func (s *UserStore) SetModerator(ctx context.Context, id int64, moderator bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET moderator=$2 WHERE id=$1`, id, moderator); err != nil {
		return fmt.Errorf("set moderator %d: %w", id, err)
	}
	return nil
}

func (s *UserStore) SetLocked(ctx context.Context, id int64, locked bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET locked=$2 WHERE id=$1`, id, locked); err != nil {
		return fmt.Errorf("set locked %d: %w", id, err)
	}
	return nil
}

// ReapInactiveAnonymous deletes anonymous users (no email) with no
// authored versions and no activity since the cutoff. Users with any
// ledger entry are never deleted: version rows keep their authors.
func (s *UserStore) ReapInactiveAnonymous(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM users u
		WHERE u.email IS NULL
		  AND u.moderator = FALSE
		  AND u.last_seen_at < $1
		  AND NOT EXISTS (SELECT 1 FROM org_v v WHERE v.moderation_user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM event_v v WHERE v.moderation_user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM address_v v WHERE v.moderation_user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM contact_v v WHERE v.moderation_user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM note_v v WHERE v.moderation_user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM tag_v v WHERE v.moderation_user_id = u.id)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap anonymous users: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap anonymous rows: %w", err)
	}
	return deleted, nil
}

// SaveRefreshSession stores a refresh token hash; the Postgres path is the
// fallback when Redis is not configured.
func (s *UserStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *UserStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, COALESCE(u.email, ''), COALESCE(u.password_hash, ''), u.moderator, u.locked, u.created_at, u.last_seen_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
		  AND rs.revoked_at IS NULL
		  AND rs.expires_at > NOW()
	`, tokenHash)
	u, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *UserStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
