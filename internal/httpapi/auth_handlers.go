package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/db"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/globaltime"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

const maxBodyBytes = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newUserResponse(user *db.AuthUser) userResponse {
	return userResponse{
		UserID:      user.UserID,
		Username:    user.Username,
		Role:        auth.NormalizeRole(user.Role),
		CreatedAt:   user.CreatedAt.UTC(),
		LastLoginAt: user.LastLoginAt,
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	if s.authStore == nil {
		return internalError(c, "auth_error", "Failed to process login")
	}

	var req loginRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	username := auth.NormalizeUsername(req.Username)
	fields := map[string]string{}
	if username == "" {
		fields["username"] = "is required"
	}
	if req.Password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	ctx := c.Request().Context()
	user, err := s.authStore.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, db.ErrNoRows) {
		s.logger.Error().Err(err).Str("username", username).Msg("login lookup failed")
		return internalError(c, "auth_error", "Failed to process login")
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return fail(c, http.StatusUnauthorized, syncer.CodeUnauthorized, "Invalid username or password", nil)
	}

	now := globaltime.UTC()
	if _, err := s.authStore.DeleteExpiredSessions(ctx, now); err != nil {
		s.logger.Warn().Err(err).Msg("delete expired sessions failed")
	}

	expiresAt := s.sessionExpiry(now)
	sessionID, err := s.authStore.CreateSession(ctx, user.UserID, expiresAt, now)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.UserID).Msg("create session failed")
		return internalError(c, "auth_error", "Failed to process login")
	}
	if err := s.authStore.SetUserLastLogin(ctx, user.UserID, now); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", user.UserID).Msg("update last login failed")
	}
	user.LastLoginAt = &now

	s.setSessionCookie(c, sessionID, expiresAt, now)
	s.logger.Info().Int64("user_id", user.UserID).Str("role", user.Role).Msg("user logged in")
	return success(c, map[string]any{
		"user":  newUserResponse(user),
		"nonce": s.createNonce(sessionID, now),
		"session": map[string]any{
			"session_id": sessionID,
			"expires_at": expiresAt,
		},
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	if sessionID, ok := s.sessionCookieValue(c); ok && s.authStore != nil && isUUID(sessionID) {
		if err := s.authStore.DeleteSession(c.Request().Context(), sessionID); err != nil {
			s.logger.Warn().Err(err).Msg("delete session failed")
		}
	}
	s.clearSessionCookie(c)
	return success(c, map[string]any{"logged_out": true})
}

func (s *Server) handleMe(c echo.Context) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return unauthorizedResponse(c)
	}

	user, err := s.authStore.GetUserByID(c.Request().Context(), principal.UserID)
	if errors.Is(err, db.ErrNoRows) {
		return unauthorizedResponse(c)
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", principal.UserID).Msg("load current user failed")
		return internalError(c, "auth_error", "Failed to load user")
	}

	return success(c, map[string]any{
		"user":         newUserResponse(user),
		"capabilities": auth.Capabilities(user.Role),
	})
}

func (s *Server) handleNonce(c echo.Context) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return unauthorizedResponse(c)
	}
	return success(c, map[string]any{
		"nonce":  s.createNonce(principal.SessionID, globaltime.UTC()),
		"header": nonceHeader,
	})
}

func (s *Server) createNonce(sessionID string, now time.Time) string {
	if s.nonces == nil {
		return ""
	}
	return s.nonces.Create(auth.NonceActionREST, sessionID, now)
}

// decodeJSONBody strictly decodes a non-empty JSON object into out.
func decodeJSONBody(c echo.Context, out any) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("payload is empty")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func readBody(c echo.Context) ([]byte, error) {
	body := c.Request().Body
	if body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxBodyBytes)
	}
	return raw, nil
}
