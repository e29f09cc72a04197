package handler

import (
	"time"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request / Response types ---

type setSessionRequest struct {
	AccessToken  string `json:"access_token"  validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginQuery struct {
	RedirectTo string `query:"redirect_to" validate:"omitempty,url"`
}

type loginResponse struct {
	URL string `json:"url"`
}

type identityResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type sessionResponse struct {
	Phase    string            `json:"phase"`
	Loading  bool              `json:"loading"`
	SignedIn bool              `json:"signed_in"`
	IsAdmin  bool              `json:"is_admin"`
	Identity *identityResponse `json:"identity,omitempty"`
	Role     string            `json:"role"`
	Error    string            `json:"error,omitempty"`
}

type listUsersQuery struct {
	Search string `query:"search" validate:"max=200"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin student"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listUsersResponse struct {
	Users []profileResponse `json:"users"`
	Total int               `json:"total"`
}

type permissionResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// --- Mappers ---

func toSessionResponse(s domain.SessionState) sessionResponse {
	resp := sessionResponse{
		Phase:    string(s.Phase),
		Loading:  s.Loading,
		SignedIn: s.SignedIn(),
		IsAdmin:  s.IsAdmin(),
		Role:     string(s.Role),
	}
	if s.Identity != nil {
		resp.Identity = &identityResponse{
			ID:        s.Identity.ID,
			Email:     s.Identity.Email,
			Name:      s.Identity.Name,
			AvatarURL: s.Identity.AvatarURL,
		}
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

func toProfileResponse(p *domain.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Role:      string(p.Role),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
