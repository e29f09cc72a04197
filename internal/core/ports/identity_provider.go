package ports

import (
	"context"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// AuthEventHandler receives session lifecycle events from the identity provider.
type AuthEventHandler func(event domain.AuthEvent)

// Subscription is the handle returned by IdentityProvider.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// IdentityProvider is the hosted auth service.
type IdentityProvider interface {
	// CurrentIdentity returns nil, nil when nobody is signed in. Transport
	// failures wrap domain.ErrProviderUnavailable.
	CurrentIdentity(ctx context.Context) (*domain.Identity, error)
	Subscribe(handler AuthEventHandler) Subscription
	SignOut(ctx context.Context) error
}

// SignInProvider starts the OAuth flow and accepts the tokens returned by the
// callback page.
type SignInProvider interface {
	AuthorizeURL(redirectTo string) (string, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) error
}

// AuthEventProcessor applies one accepted event to the session state.
type AuthEventProcessor func(ctx context.Context, event domain.AuthEvent)

// EventQueue serialises accepted auth events onto a single worker.
type EventQueue interface {
	Start(ctx context.Context, process AuthEventProcessor)
	// Enqueue reports false when the event was dropped.
	Enqueue(event domain.AuthEvent) bool
	Stop()
}

// SessionStore persists the provider session across restarts. Load returns
// nil, nil when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	Clear(ctx context.Context) error
}
