// Package gotrue adapts a hosted GoTrue-compatible auth service (the
// /auth/v1 REST API) to the identity provider port.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classroomhub/classroom/internal/core/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// Client talks to the GoTrue REST endpoints.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// NewClient creates a client for baseURL (the project URL, without /auth/v1).
func NewClient(baseURL, anonKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

// GetUser validates accessToken with the server and returns its identity.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("get user: %w: missing id", domain.ErrInvalidIdentity)
	}
	id := identityFrom(u.ID, u.Email, u.UserMetadata)
	return &id, nil
}

// RefreshSession exchanges refreshToken for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var tr tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &tr); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	s := &domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Identity:     identityFrom(tr.User.ID, tr.User.Email, tr.User.UserMetadata),
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return s, nil
}

// Logout revokes the session behind accessToken. A token the server no longer
// knows counts as logged out.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
	if err != nil && !isRejected(err) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// AuthorizeURL builds the OAuth start URL for provider. Google is asked for
// offline access with a forced consent prompt so a refresh token is issued.
func (c *Client) AuthorizeURL(provider, redirectTo string) (string, error) {
	u, err := url.Parse(c.baseURL + "/auth/v1/authorize")
	if err != nil {
		return "", fmt.Errorf("authorize url: %w", err)
	}
	q := u.Query()
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if provider == "google" {
		q.Set("access_type", "offline")
		q.Set("prompt", "consent")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// apiError carries a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.Status, e.Message)
}

func (e *apiError) Unwrap() error {
	if e.Status == http.StatusBadRequest || e.Status == http.StatusUnauthorized ||
		e.Status == http.StatusForbidden || e.Status == http.StatusNotFound {
		return domain.ErrSessionRejected
	}
	return domain.ErrProviderUnavailable
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func isRejected(err error) bool {
	return errors.Is(err, domain.ErrSessionRejected)
}

// identityFrom maps provider metadata onto an Identity. The display name is
// taken from "name", falling back to "full_name"; the avatar from
// "avatar_url", falling back to "picture".
func identityFrom(id, email string, meta map[string]any) domain.Identity {
	return domain.Identity{
		ID:        id,
		Email:     email,
		Name:      firstString(meta, "name", "full_name"),
		AvatarURL: firstString(meta, "avatar_url", "picture"),
	}
}

func firstString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := meta[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
