package handler

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/service"
)

type stubSessions struct {
	state      domain.SessionState
	retryErr   error
	signOutErr error
	retries    int
	signOuts   int
}

func (s *stubSessions) State() domain.SessionState { return s.state }

func (s *stubSessions) Retry(context.Context) error {
	s.retries++
	return s.retryErr
}

func (s *stubSessions) SignOut(context.Context) error {
	s.signOuts++
	return s.signOutErr
}

type stubSignIn struct {
	setFn       func(ctx context.Context, accessToken, refreshToken string) error
	authorizeFn func(redirectTo string) (string, error)
}

func (s *stubSignIn) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	return s.setFn(ctx, accessToken, refreshToken)
}

func (s *stubSignIn) AuthorizeURL(redirectTo string) (string, error) {
	return s.authorizeFn(redirectTo)
}

type stubUsers struct {
	listFn       func(ctx context.Context, search string) ([]*domain.Profile, error)
	changeRoleFn func(ctx context.Context, actorID, targetID string, role domain.Role) (*domain.Profile, error)
	admins       map[string]bool
}

func (s *stubUsers) ListUsers(ctx context.Context, search string) ([]*domain.Profile, error) {
	return s.listFn(ctx, search)
}

func (s *stubUsers) ChangeRole(ctx context.Context, actorID, targetID string, role domain.Role) (*domain.Profile, error) {
	return s.changeRoleFn(ctx, actorID, targetID, role)
}

func (s *stubUsers) IsAdmin(_ context.Context, id string) (bool, error) {
	return s.admins[id], nil
}

func (s *stubUsers) RequireAdmin(ctx context.Context, id string) error {
	if !s.admins[id] {
		return domain.ErrForbidden
	}
	return nil
}

func (s *stubUsers) Can(_ context.Context, id string, perm service.Permission) (bool, error) {
	return s.admins[id] && strings.Contains(string(perm), ":"), nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}
