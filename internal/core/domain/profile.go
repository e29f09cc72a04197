package domain

import "time"

// Role controls authorization checks across the application.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// NormalizeRole maps a stored role value to a known Role. Empty or unexpected
// values fall back to RoleStudent.
func NormalizeRole(s string) Role {
	if r := Role(s); r.Valid() {
		return r
	}
	return RoleStudent
}

// InitialRole applies the bootstrap-admin rule: the first profile ever
// created is an admin, every later one a student.
func InitialRole(existingProfiles int64) Role {
	if existingProfiles == 0 {
		return RoleAdmin
	}
	return RoleStudent
}

// Profile is the durable authorization record for an Identity.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile builds a profile for a first-seen identity.
func NewProfile(id Identity, role Role, now time.Time) *Profile {
	return &Profile{
		ID:        id.ID,
		Email:     id.Email,
		Name:      id.Name,
		AvatarURL: id.AvatarURL,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ContactDiffers reports whether the identity carries contact fields that
// differ from the stored profile.
func (p *Profile) ContactDiffers(id Identity) bool {
	return p.Email != id.Email || p.Name != id.Name || p.AvatarURL != id.AvatarURL
}
