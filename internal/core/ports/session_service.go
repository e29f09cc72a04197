package ports

import (
	"context"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// SessionReader exposes the current SessionState.
type SessionReader interface {
	State() domain.SessionState
}

// SessionService is what the transport layer needs from the reconciler.
type SessionService interface {
	SessionReader
	Retry(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// UserService covers the admin-only profile operations.
type UserService interface {
	ListUsers(ctx context.Context, search string) ([]*domain.Profile, error)
	ChangeRole(ctx context.Context, actorID, targetID string, role domain.Role) (*domain.Profile, error)
}
