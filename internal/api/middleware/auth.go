package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/core/ports"
)

// Context keys set by RequireSession.
const (
	KeyIdentityID = "identity_id"
	KeyEmail      = "email"
	KeyRole       = "role"
)

// RequireSession admits requests only while a resolved identity is held.
// While the session is still being resolved it answers 503 so clients retry;
// without an identity it answers 401.
func RequireSession(sessions ports.SessionReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			state := sessions.State()
			if state.Loading {
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session is loading")
			}
			if !state.SignedIn() {
				return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
			}

			c.Set(KeyIdentityID, state.Identity.ID)
			c.Set(KeyEmail, state.Identity.Email)
			c.Set(KeyRole, string(state.Role))

			return next(c)
		}
	}
}
