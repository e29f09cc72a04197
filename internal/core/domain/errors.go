package domain

import "errors"

// Profile store errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

// Identity provider errors.
var (
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrSessionRejected     = errors.New("session rejected by identity provider")
)

// Authorization errors. These are validation failures and are never retried.
var (
	ErrForbidden      = errors.New("access forbidden")
	ErrInvalidRole    = errors.New("invalid role")
	ErrSelfRoleChange = errors.New("cannot change your own role")
	ErrLastAdmin      = errors.New("cannot remove the last remaining admin")
)

// Session lifecycle errors.
var (
	ErrNotStarted    = errors.New("session reconciler not started")
	ErrSessionClosed = errors.New("session reconciler closed")
)
