package domain

// Phase is the reconciler lifecycle: UNINITIALIZED → INITIALIZING → READY.
type Phase string

const (
	PhaseUninitialized Phase = "UNINITIALIZED"
	PhaseInitializing  Phase = "INITIALIZING"
	PhaseReady         Phase = "READY"
)

// SessionState is the process-wide view of who is signed in.
type SessionState struct {
	Identity *Identity
	Role     Role
	Loading  bool
	Err      error
	Phase    Phase
}

// IsAdmin reports whether a signed-in identity holds the admin role.
func (s SessionState) IsAdmin() bool {
	return s.Identity != nil && s.Role == RoleAdmin
}

// SignedIn reports whether an identity is present.
func (s SessionState) SignedIn() bool {
	return s.Identity != nil
}
