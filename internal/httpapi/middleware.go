package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/globaltime"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

// nonceHeader carries the origin token issued at login and by /auth/nonce.
const nonceHeader = "X-Langsync-Nonce"

func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.authStore == nil {
				return internalError(c, "auth_error", "Failed to authorize request")
			}

			principal, err := s.resolveSession(c, globaltime.UTC())
			if errors.Is(err, errNoSession) {
				return unauthorizedResponse(c)
			}
			if err != nil {
				s.logger.Error().Err(err).Msg("session lookup failed")
				return internalError(c, "auth_error", "Failed to authorize request")
			}

			c.Set(principalKey, principal)
			return next(c)
		}
	}
}

// requireCapability rejects principals whose role lacks capability. It
// must be chained after requireAuth.
func (s *Server) requireCapability(capability auth.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := principalFromContext(c)
			if !ok {
				return unauthorizedResponse(c)
			}
			if !auth.RoleCan(principal.Role, capability) {
				return failSync(c, syncer.AuthError(http.StatusForbidden, syncer.CodeForbidden, "Insufficient permissions."))
			}
			return next(c)
		}
	}
}

// requireNonce checks the origin token bound to the caller's session.
func (s *Server) requireNonce() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := principalFromContext(c)
			if !ok {
				return unauthorizedResponse(c)
			}
			nonce := strings.TrimSpace(c.Request().Header.Get(nonceHeader))
			if s.nonces == nil || !s.nonces.Verify(nonce, auth.NonceActionREST, principal.SessionID, globaltime.UTC()) {
				return failSync(c, syncer.AuthError(http.StatusForbidden, syncer.CodeInvalidNonce, "Invalid nonce."))
			}
			return next(c)
		}
	}
}

func unauthorizedResponse(c echo.Context) error {
	return failSync(c, syncer.AuthError(http.StatusUnauthorized, syncer.CodeUnauthorized, "Authentication required."))
}
