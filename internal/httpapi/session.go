package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/db"
)

const (
	principalKey         = "auth.principal"
	sessionTouchInterval = time.Minute
)

// authStore is the account and session surface the routes need.
type authStore interface {
	GetSession(ctx context.Context, sessionID string) (*db.AuthSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error
	GetUserByUsername(ctx context.Context, username string) (*db.AuthUser, error)
	GetUserByID(ctx context.Context, userID int64) (*db.AuthUser, error)
	CreateSession(ctx context.Context, userID int64, expiresAt, now time.Time) (string, error)
	SetUserLastLogin(ctx context.Context, userID int64, loginAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// authPrincipal is the caller resolved from a live session.
type authPrincipal struct {
	SessionID string
	UserID    int64
	Username  string
	Role      string
	ExpiresAt time.Time
}

var errNoSession = errors.New("no live session")

// resolveSession maps the session cookie to a principal. It returns
// errNoSession for a missing, malformed, unknown or expired session, and
// clears the cookie in the last three cases.
func (s *Server) resolveSession(c echo.Context, now time.Time) (authPrincipal, error) {
	sessionID, present := s.sessionCookieValue(c)
	if !present {
		return authPrincipal{}, errNoSession
	}
	if !isUUID(sessionID) {
		s.clearSessionCookie(c)
		return authPrincipal{}, errNoSession
	}

	ctx := c.Request().Context()
	session, err := s.authStore.GetSession(ctx, sessionID)
	if errors.Is(err, db.ErrNoRows) {
		s.clearSessionCookie(c)
		return authPrincipal{}, errNoSession
	}
	if err != nil {
		return authPrincipal{}, err
	}

	if !session.ExpiresAt.After(now) {
		_ = s.authStore.DeleteSession(ctx, session.SessionID)
		s.clearSessionCookie(c)
		return authPrincipal{}, errNoSession
	}
	if now.Sub(session.LastSeenAt) >= sessionTouchInterval {
		_ = s.authStore.TouchSession(ctx, session.SessionID, now)
	}

	return authPrincipal{
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Username:  session.Username,
		Role:      auth.NormalizeRole(session.Role),
		ExpiresAt: session.ExpiresAt.UTC(),
	}, nil
}

func principalFromContext(c echo.Context) (authPrincipal, bool) {
	if c == nil {
		return authPrincipal{}, false
	}
	principal, ok := c.Get(principalKey).(authPrincipal)
	return principal, ok
}

func (s *Server) sessionCookieValue(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(s.opts.SessionCookie)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

func (s *Server) setSessionCookie(c echo.Context, sessionID string, expiresAt, now time.Time) {
	s.writeSessionCookie(c, sessionID, expiresAt.UTC(), max(1, int(expiresAt.Sub(now).Seconds())))
}

func (s *Server) clearSessionCookie(c echo.Context) {
	s.writeSessionCookie(c, "", time.Unix(0, 0).UTC(), -1)
}

func (s *Server) writeSessionCookie(c echo.Context, value string, expires time.Time, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     s.opts.SessionCookie,
		Value:    strings.TrimSpace(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SessionSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
		MaxAge:   maxAge,
	})
}

func (s *Server) sessionExpiry(now time.Time) time.Time {
	ttl := s.opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return now.UTC().Add(ttl)
}

// isUUID accepts only the canonical 36-character form.
func isUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}
