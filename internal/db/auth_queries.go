package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
)

type AuthUser struct {
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// AuthSession is a live session joined with its owner's name and role.
type AuthSession struct {
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

const userColumns = `user_id, username, role, password_hash, created_at, last_login_at`

func (p *Pool) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := p.gdb.WithContext(ctx).Model(&User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CreateUser inserts an account. Unknown roles are rejected before the
// insert; a taken username surfaces the driver's unique-violation error.
func (p *Pool) CreateUser(ctx context.Context, username, passwordHash, role string) (*AuthUser, error) {
	normalizedRole := auth.NormalizeRole(role)
	if normalizedRole == "" {
		return nil, fmt.Errorf("create user: unknown role %q", role)
	}

	row := User{
		Username:     auth.NormalizeUsername(username),
		PasswordHash: strings.TrimSpace(passwordHash),
		Role:         normalizedRole,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &AuthUser{
		UserID:       row.UserID,
		Username:     row.Username,
		Role:         row.Role,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		LastLoginAt:  row.LastLoginAt,
	}, nil
}

func (p *Pool) GetUserByUsername(ctx context.Context, username string) (*AuthUser, error) {
	return p.lookupUser(ctx, "username = $1", auth.NormalizeUsername(username))
}

func (p *Pool) GetUserByID(ctx context.Context, userID int64) (*AuthUser, error) {
	return p.lookupUser(ctx, "user_id = $1", userID)
}

func (p *Pool) lookupUser(ctx context.Context, predicate string, arg any) (*AuthUser, error) {
	q := `SELECT ` + userColumns + ` FROM cms.users WHERE ` + predicate + ` LIMIT 1`

	var user AuthUser
	err := p.QueryRow(ctx, q, arg).Scan(
		&user.UserID,
		&user.Username,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	switch {
	case IsNoRows(err):
		return nil, ErrNoRows
	case err != nil:
		return nil, fmt.Errorf("query user where %s: %w", predicate, err)
	}
	return &user, nil
}

func (p *Pool) SetUserLastLogin(ctx context.Context, userID int64, loginAt time.Time) error {
	return p.execOne(ctx, "update user last login",
		`UPDATE cms.users SET last_login_at = $2 WHERE user_id = $1`,
		userID, loginAt.UTC())
}

func (p *Pool) CreateSession(ctx context.Context, userID int64, expiresAt, now time.Time) (string, error) {
	const q = `
INSERT INTO cms.sessions (user_id, expires_at, created_at, last_seen_at)
VALUES ($1, $2, $3, $3)
RETURNING session_id::text
`

	var sessionID string
	if err := p.QueryRow(ctx, q, userID, expiresAt.UTC(), now.UTC()).Scan(&sessionID); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return sessionID, nil
}

func (p *Pool) GetSession(ctx context.Context, sessionID string) (*AuthSession, error) {
	const q = `
SELECT s.session_id::text, s.user_id, u.username, u.role, s.expires_at, s.last_seen_at
FROM cms.sessions s
JOIN cms.users u ON u.user_id = s.user_id
WHERE s.session_id = $1::uuid
`

	var session AuthSession
	err := p.QueryRow(ctx, q, strings.TrimSpace(sessionID)).Scan(
		&session.SessionID,
		&session.UserID,
		&session.Username,
		&session.Role,
		&session.ExpiresAt,
		&session.LastSeenAt,
	)
	switch {
	case IsNoRows(err):
		return nil, ErrNoRows
	case err != nil:
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &session, nil
}

func (p *Pool) TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error {
	return p.execOne(ctx, "touch session",
		`UPDATE cms.sessions SET last_seen_at = $2 WHERE session_id = $1::uuid`,
		strings.TrimSpace(sessionID), seenAt.UTC())
}

func (p *Pool) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := p.Exec(ctx, `DELETE FROM cms.sessions WHERE session_id = $1::uuid`, strings.TrimSpace(sessionID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *Pool) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := p.Exec(ctx, `DELETE FROM cms.sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return deleted, nil
}

// execOne runs a statement that must touch exactly one existing row.
func (p *Pool) execOne(ctx context.Context, label, query string, args ...any) error {
	affected, err := p.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
