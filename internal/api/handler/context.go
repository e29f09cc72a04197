package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/api/middleware"
)

// ctxActor extracts the identity injected by the RequireSession middleware.
// An empty value means the route was mounted without it.
func ctxActor(c echo.Context) (string, error) {
	id, _ := c.Get(middleware.KeyIdentityID).(string)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing session identity")
	}
	return id, nil
}
