package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/core/ports"
)

type AuthHandler struct {
	signIn ports.SignInProvider
}

func NewAuthHandler(signIn ports.SignInProvider) *AuthHandler {
	return &AuthHandler{signIn: signIn}
}

// Login returns the URL that starts Google sign-in.
//
// @Summary      Start sign-in
// @Tags         auth
// @Produce      json
// @Param        redirect_to  query     string  false  "Callback page receiving the tokens"
// @Success      200          {object}  loginResponse
// @Failure      422          {object}  errorResponse
// @Router       /v1/auth/login [get]
func (h *AuthHandler) Login(c echo.Context) error {
	var q loginQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	url, err := h.signIn.AuthorizeURL(q.RedirectTo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{URL: url})
}
