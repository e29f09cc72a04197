package domain

import "time"

// AuthEventKind enumerates session lifecycle events pushed by the identity provider.
type AuthEventKind string

const (
	// EventInitialSession re-announces the session already present when a
	// subscription is set up.
	EventInitialSession AuthEventKind = "INITIAL_SESSION"
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is a single notification from the identity provider.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session // nil when the event carries no session
	At      time.Time
}

// CarriesIdentity reports whether the event has a session with a usable identity.
func (e AuthEvent) CarriesIdentity() bool {
	return e.Session != nil && e.Session.Identity.ID != ""
}
