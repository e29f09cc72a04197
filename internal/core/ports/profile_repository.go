package ports

import (
	"context"
	"time"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// ProfileRepository defines persistence for profiles.
type ProfileRepository interface {
	// FindByID returns domain.ErrProfileNotFound when no row exists.
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	// Insert returns domain.ErrProfileExists on a uniqueness violation.
	Insert(ctx context.Context, p *domain.Profile) error
	// UpdateContact rewrites email, name and avatar only. The role is never touched.
	UpdateContact(ctx context.Context, id, email, name, avatarURL string, at time.Time) error
	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context, role domain.Role) (int64, error)
	// List returns all profiles, newest first.
	List(ctx context.Context) ([]*domain.Profile, error)
	UpdateRole(ctx context.Context, id string, role domain.Role, at time.Time) error
}
