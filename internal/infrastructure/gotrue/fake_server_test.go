package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classroomhub/classroom/internal/core/domain"
)

const (
	testAnonKey = "anon-key"
	testSecret  = "super-secret-jwt-token-with-at-least-32-characters"
)

// fakeGoTrue is an in-memory stand-in for the hosted auth REST API.
type fakeGoTrue struct {
	t *testing.T

	mu         sync.Mutex
	users      map[string]userResponse  // access token → user
	refresh    map[string]tokenResponse // refresh token → new pair
	userStatus int                      // forces GET /user status when non-zero
	logoutCode int                      // forces POST /logout status when non-zero
	refreshes  int
	logouts    int
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	f := &fakeGoTrue{
		t:       t,
		users:   make(map[string]userResponse),
		refresh: make(map[string]tokenResponse),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != testAnonKey {
		http.Error(w, `{"message":"no api key"}`, http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/auth/v1/user":
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		u, ok := f.users[bearer]
		if !ok {
			http.Error(w, `{"message":"invalid JWT"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(u)

	case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/token":
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.refreshes++
		tr, ok := f.refresh[body.RefreshToken]
		if !ok {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		delete(f.refresh, body.RefreshToken)
		f.users[tr.AccessToken] = tr.User
		_ = json.NewEncoder(w).Encode(tr)

	case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/logout":
		f.logouts++
		if f.logoutCode != 0 {
			w.WriteHeader(f.logoutCode)
			return
		}
		delete(f.users, bearer)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

// issue registers a signed access token for user and returns it.
func (f *fakeGoTrue) issue(user userResponse, exp time.Time) string {
	f.t.Helper()
	token := signToken(f.t, testSecret, user.ID, user.Email, exp)
	f.mu.Lock()
	f.users[token] = user
	f.mu.Unlock()
	return token
}

// allowRefresh lets refreshToken be exchanged once for a new pair.
func (f *fakeGoTrue) allowRefresh(refreshToken string, user userResponse, exp time.Time) tokenResponse {
	f.t.Helper()
	tr := tokenResponse{
		AccessToken:  signToken(f.t, testSecret, user.ID, user.Email, exp),
		RefreshToken: refreshToken + "-next",
		ExpiresAt:    exp.Unix(),
		User:         user,
	}
	f.mu.Lock()
	f.refresh[refreshToken] = tr
	f.mu.Unlock()
	return tr
}

func signToken(t *testing.T, secret, sub, email string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
		"user_metadata": map[string]any{
			"full_name":  "Kim Jiho",
			"avatar_url": "https://lh3.googleusercontent.com/a/" + sub,
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func testUser(id string) userResponse {
	return userResponse{
		ID:    id,
		Email: id + "@school.kr",
		UserMetadata: map[string]any{
			"full_name":  "Kim Jiho",
			"avatar_url": "https://lh3.googleusercontent.com/a/" + id,
		},
	}
}

// memStore is an in-memory ports.SessionStore.
type memStore struct {
	mu      sync.Mutex
	session *domain.Session
	saves   int
	clears  int
}

func (m *memStore) Load(context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session), nil
}

func (m *memStore) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = copySession(s)
	m.saves++
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.clears++
	return nil
}

// eventLog records events delivered to a subscription.
type eventLog struct {
	mu     sync.Mutex
	events []domain.AuthEvent
	ch     chan domain.AuthEvent
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan domain.AuthEvent, 16)}
}

func (l *eventLog) handle(e domain.AuthEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.ch <- e
}

// next waits for the next event of kind, skipping others.
func (l *eventLog) next(t *testing.T, kind domain.AuthEventKind) domain.AuthEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-l.ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event received", kind)
		}
	}
}

func (f *fakeGoTrue) setUserStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStatus = code
}

func (f *fakeGoTrue) setLogoutCode(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCode = code
}

func (f *fakeGoTrue) revoke(accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, accessToken)
}

func (f *fakeGoTrue) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}
