package gotrue

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// accessClaims is the payload of a GoTrue access token.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// ClaimsParser decodes access tokens. With a secret the HS256 signature is
// verified; without one the payload is read unverified and the server's
// /user endpoint remains the authority.
type ClaimsParser struct {
	secret []byte
}

func NewClaimsParser(secret string) *ClaimsParser {
	p := &ClaimsParser{}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// Parse returns the identity and expiry carried by token. Expiry is not
// enforced here; callers compare it against their refresh margin.
func (p *ClaimsParser) Parse(token string) (domain.Identity, time.Time, error) {
	var c accessClaims

	if p.secret != nil {
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
		if _, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return p.secret, nil }); err != nil {
			return domain.Identity{}, time.Time{}, fmt.Errorf("%w: %w", domain.ErrSessionRejected, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
			return domain.Identity{}, time.Time{}, fmt.Errorf("%w: %w", domain.ErrSessionRejected, err)
		}
	}

	if c.Subject == "" {
		return domain.Identity{}, time.Time{}, fmt.Errorf("%w: token has no subject", domain.ErrInvalidIdentity)
	}
	var exp time.Time
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time.UTC()
	}
	return identityFrom(c.Subject, c.Email, c.UserMetadata), exp, nil
}
