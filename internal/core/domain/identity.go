package domain

import "time"

// Identity is the authenticated principal as reported by the identity provider.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is the token pair issued by the hosted auth service together with
// the identity it was issued for.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}

// Expired reports whether the access token expires within margin of now.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// ResolvedSession is the (identity, role) tuple produced by the bootstrapper.
type ResolvedSession struct {
	Identity Identity
	Role     Role
}
