package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
)

// Permission names an admin-gated action of the classroom app.
type Permission string

const (
	PermCreateNotice           Permission = "notice:create"
	PermEditNotice             Permission = "notice:edit"
	PermDeleteNotice           Permission = "notice:delete"
	PermConfigureSeating       Permission = "seating:configure"
	PermGenerateSeating        Permission = "seating:generate"
	PermViewAllSuggestions     Permission = "suggestion:view_all"
	PermUpdateSuggestionStatus Permission = "suggestion:update_status"
	PermAddAdminNote           Permission = "suggestion:admin_note"
	PermManageUsers            Permission = "users:manage"
	PermUpdateUserRole         Permission = "users:update_role"
)

// permissionRoles lists the roles granted each permission.
var permissionRoles = map[Permission][]domain.Role{
	PermCreateNotice:           {domain.RoleAdmin},
	PermEditNotice:             {domain.RoleAdmin},
	PermDeleteNotice:           {domain.RoleAdmin},
	PermConfigureSeating:       {domain.RoleAdmin},
	PermGenerateSeating:        {domain.RoleAdmin},
	PermViewAllSuggestions:     {domain.RoleAdmin},
	PermUpdateSuggestionStatus: {domain.RoleAdmin},
	PermAddAdminNote:           {domain.RoleAdmin},
	PermManageUsers:            {domain.RoleAdmin},
	PermUpdateUserRole:         {domain.RoleAdmin},
}

type userService struct {
	repo    ports.ProfileRepository
	roles   *RoleResolver
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// UserService is the admin-facing profile service plus permission checks.
type UserService interface {
	ports.UserService
	IsAdmin(ctx context.Context, id string) (bool, error)
	RequireAdmin(ctx context.Context, id string) error
	Can(ctx context.Context, id string, perm Permission) (bool, error)
}

// NewUserService returns a UserService implementation.
func NewUserService(repo ports.ProfileRepository, roles *RoleResolver, timeout time.Duration, log zerolog.Logger) UserService {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &userService{repo: repo, roles: roles, timeout: timeout, log: log, now: time.Now}
}

// ListUsers returns all profiles, newest first, optionally filtered by a
// case-insensitive match on email or name.
func (s *userService) ListUsers(ctx context.Context, search string) ([]*domain.Profile, error) {
	var all []*domain.Profile
	err := bounded(ctx, s.timeout, "list profiles", func(ctx context.Context) error {
		var err error
		all, err = s.repo.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return all, nil
	}
	out := make([]*domain.Profile, 0, len(all))
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Email), search) || strings.Contains(strings.ToLower(p.Name), search) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ChangeRole sets targetID's role on behalf of actorID.
func (s *userService) ChangeRole(ctx context.Context, actorID, targetID string, role domain.Role) (*domain.Profile, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, domain.ErrSelfRoleChange
	}

	target, err := s.roles.LookupProfile(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	current := domain.NormalizeRole(string(target.Role))
	if current == role {
		return target, nil
	}

	if current == domain.RoleAdmin {
		var admins int64
		err := bounded(ctx, s.timeout, "count admins", func(ctx context.Context) error {
			var err error
			admins, err = s.repo.CountByRole(ctx, domain.RoleAdmin)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("change role: %w", err)
		}
		if admins <= 1 {
			return nil, domain.ErrLastAdmin
		}
	}

	now := s.now().UTC()
	err = bounded(ctx, s.timeout, "update role", func(ctx context.Context) error {
		return s.repo.UpdateRole(ctx, targetID, role, now)
	})
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}

	s.log.Info().
		Str("actor_id", actorID).
		Str("target_id", targetID).
		Str("from", string(current)).
		Str("to", string(role)).
		Msg("role changed")

	target.Role = role
	target.UpdatedAt = now
	return target, nil
}

// IsAdmin reports whether id currently holds the admin role. Lookup failures
// are returned; a missing profile is simply not an admin.
func (s *userService) IsAdmin(ctx context.Context, id string) (bool, error) {
	role, err := s.roles.GetRole(ctx, id)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrInvalidIdentity):
		return false, nil
	case err != nil:
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// RequireAdmin returns domain.ErrForbidden unless id is an admin.
func (s *userService) RequireAdmin(ctx context.Context, id string) error {
	ok, err := s.IsAdmin(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

// Can reports whether id may perform perm. Unknown permissions are denied.
func (s *userService) Can(ctx context.Context, id string, perm Permission) (bool, error) {
	allowed, ok := permissionRoles[perm]
	if !ok {
		return false, nil
	}
	role, err := s.roles.GetRole(ctx, id)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrInvalidIdentity):
		return false, nil
	case err != nil:
		return false, err
	}
	for _, r := range allowed {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}
