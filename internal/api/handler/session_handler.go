package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/core/ports"
)

type SessionHandler struct {
	sessions ports.SessionService
	signIn   ports.SignInProvider
}

func NewSessionHandler(sessions ports.SessionService, signIn ports.SignInProvider) *SessionHandler {
	return &SessionHandler{sessions: sessions, signIn: signIn}
}

// Get returns the current session state.
//
// @Summary      Current session
// @Tags         session
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Router       /v1/session [get]
func (h *SessionHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.State()))
}

// Create adopts the tokens returned to the OAuth callback page. The session
// state is updated asynchronously once the sign-in event is processed.
//
// @Summary      Hand over OAuth tokens
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      setSessionRequest  true  "Tokens from the OAuth callback"
// @Success      202   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/session [post]
func (h *SessionHandler) Create(c echo.Context) error {
	var req setSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.signIn.SetSession(c.Request().Context(), req.AccessToken, req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toSessionResponse(h.sessions.State()))
}

// Retry re-runs session resolution after a failure.
//
// @Summary      Retry session resolution
// @Tags         session
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Failure      503  {object}  errorResponse
// @Router       /v1/session/retry [post]
func (h *SessionHandler) Retry(c echo.Context) error {
	if err := h.sessions.Retry(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.State()))
}

// SignOut ends the session at the identity provider.
//
// @Summary      Sign out
// @Tags         session
// @Success      204
// @Failure      503  {object}  errorResponse
// @Router       /v1/session/signout [post]
func (h *SessionHandler) SignOut(c echo.Context) error {
	if err := h.sessions.SignOut(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
