package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/service"
)

type UserHandler struct {
	users service.UserService
}

func NewUserHandler(users service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List returns every profile, newest first.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        search  query     string  false  "Case-insensitive match on email or name"
// @Success      200     {object}  listUsersResponse
// @Failure      401     {object}  errorResponse
// @Failure      403     {object}  errorResponse
// @Router       /v1/users [get]
func (h *UserHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var q listUsersQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx := c.Request().Context()
	if err := h.users.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	profiles, err := h.users.ListUsers(ctx, q.Search)
	if err != nil {
		return err
	}

	resp := listUsersResponse{Users: make([]profileResponse, 0, len(profiles)), Total: len(profiles)}
	for _, p := range profiles {
		resp.Users = append(resp.Users, toProfileResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

// ChangeRole sets the role of another user.
//
// @Summary      Change a user's role
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Profile id"
// @Param        body  body      changeRoleRequest  true  "New role"
// @Success      200   {object}  profileResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	p, err := h.users.ChangeRole(c.Request().Context(), actor, c.Param("id"), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(p))
}

// Permission reports whether the signed-in user holds a permission.
//
// @Summary      Check a permission
// @Tags         users
// @Produce      json
// @Param        permission  path      string  true  "Permission name, e.g. notice:create"
// @Success      200         {object}  permissionResponse
// @Failure      401         {object}  errorResponse
// @Router       /v1/session/permissions/{permission} [get]
func (h *UserHandler) Permission(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	perm := service.Permission(c.Param("permission"))
	ok, err := h.users.Can(c.Request().Context(), actor, perm)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, permissionResponse{Permission: string(perm), Allowed: ok})
}
