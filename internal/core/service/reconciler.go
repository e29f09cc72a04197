package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/metrics"
)

// SessionResolver is the part of the Bootstrapper the reconciler drives.
type SessionResolver interface {
	ResolveCurrentSession(ctx context.Context) (*domain.ResolvedSession, error)
	EnsureProfile(ctx context.Context, identity domain.Identity) error
}

// RoleSource is the part of the RoleResolver the reconciler drives.
type RoleSource interface {
	GetRole(ctx context.Context, id string) (domain.Role, error)
	GetRoleWithRetry(ctx context.Context, id string) domain.Role
}

// Reconciler owns the process-wide SessionState. The bootstrapper's result is
// always its first write: provider events are received from subscription
// onwards but discarded until the phase is READY.
type Reconciler struct {
	provider ports.IdentityProvider
	boot     SessionResolver
	roles    RoleSource
	queue    ports.EventQueue
	log      zerolog.Logger

	mu     sync.RWMutex
	state  domain.SessionState
	sub    ports.Subscription
	closed bool
}

func NewReconciler(
	provider ports.IdentityProvider,
	boot SessionResolver,
	roles RoleSource,
	queue ports.EventQueue,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		provider: provider,
		boot:     boot,
		roles:    roles,
		queue:    queue,
		log:      log,
		state:    domain.SessionState{Phase: domain.PhaseUninitialized, Loading: true},
	}
}

// Start subscribes to provider events and runs the bootstrapper, blocking until
// its result has been recorded and the phase is READY. Only the first call has
// any effect.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.state.Phase != domain.PhaseUninitialized {
		phase := r.state.Phase
		r.mu.Unlock()
		r.log.Warn().Str("phase", string(phase)).Msg("duplicate session initialisation ignored")
		return
	}
	r.state = domain.SessionState{Phase: domain.PhaseInitializing, Loading: true}
	r.mu.Unlock()

	r.queue.Start(ctx, r.apply)
	sub := r.provider.Subscribe(r.receive)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	r.sub = sub
	r.mu.Unlock()

	resolved, err := r.boot.ResolveCurrentSession(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.state = stateFrom(resolved, err, domain.PhaseReady)
	r.log.Info().Bool("signed_in", r.state.SignedIn()).Err(err).Msg("session initialised")
}

// State returns a snapshot of the current SessionState.
func (r *Reconciler) State() domain.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Retry re-runs the bootstrapper and replaces the state wholesale. The
// bootstrap error, if any, is both recorded and returned. If ctx ends before
// resolution completes, the previous state is kept and ctx's error returned.
func (r *Reconciler) Retry(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return domain.ErrSessionClosed
	case r.state.Phase == domain.PhaseUninitialized:
		r.mu.Unlock()
		return domain.ErrNotStarted
	}
	prev := r.state
	r.state.Loading = true
	r.state.Err = nil
	r.mu.Unlock()

	resolved, err := r.boot.ResolveCurrentSession(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrSessionClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.state = prev
		return ctxErr
	}
	r.state = stateFrom(resolved, err, r.state.Phase)
	return err
}

// SignOut signs out at the provider and then clears the state. Provider
// failures are returned unchanged and leave the state untouched.
func (r *Reconciler) SignOut(ctx context.Context) error {
	if err := r.provider.SignOut(ctx); err != nil {
		return err
	}
	r.update(clearIdentity(nil))
	return nil
}

// Close unsubscribes and stops the event worker. No state mutation happens
// afterwards; late results are dropped.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	r.queue.Stop()
}

// receive is the subscription callback. It never blocks the provider.
func (r *Reconciler) receive(event domain.AuthEvent) {
	r.mu.RLock()
	phase, closed := r.state.Phase, r.closed
	r.mu.RUnlock()

	if closed || phase != domain.PhaseReady || event.Kind == domain.EventInitialSession {
		metrics.AuthEventsTotal.WithLabelValues(string(event.Kind), "discarded").Inc()
		r.log.Debug().Str("kind", string(event.Kind)).Str("phase", string(phase)).Msg("auth event discarded")
		return
	}
	if !r.queue.Enqueue(event) {
		metrics.AuthEventsTotal.WithLabelValues(string(event.Kind), "discarded").Inc()
		r.log.Warn().Str("kind", string(event.Kind)).Msg("auth event dropped by queue")
	}
}

// apply runs on the queue worker, one event at a time.
func (r *Reconciler) apply(ctx context.Context, event domain.AuthEvent) {
	switch event.Kind {
	case domain.EventSignedOut:
		r.update(clearIdentity(nil))
	case domain.EventSignedIn, domain.EventTokenRefreshed, domain.EventUserUpdated:
		if !event.CarriesIdentity() {
			metrics.AuthEventsTotal.WithLabelValues(string(event.Kind), "ignored").Inc()
			return
		}
		r.applySession(ctx, event.Session.Identity)
	default:
		metrics.AuthEventsTotal.WithLabelValues(string(event.Kind), "ignored").Inc()
		return
	}
	metrics.AuthEventsTotal.WithLabelValues(string(event.Kind), "applied").Inc()
}

func (r *Reconciler) applySession(ctx context.Context, identity domain.Identity) {
	role, err := r.roles.GetRole(ctx, identity.ID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		if err = r.boot.EnsureProfile(ctx, identity); err == nil {
			role = r.roles.GetRoleWithRetry(ctx, identity.ID)
		}
	}
	if err != nil {
		r.log.Error().Err(err).Str("identity_id", identity.ID).Msg("session reconciliation failed, clearing identity")
		r.update(clearIdentity(err))
		return
	}

	r.update(func(s *domain.SessionState) {
		s.Identity = &identity
		s.Role = role
		s.Err = nil
		s.Loading = false
	})
}

func (r *Reconciler) update(fn func(s *domain.SessionState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	fn(&r.state)
}

func clearIdentity(err error) func(s *domain.SessionState) {
	return func(s *domain.SessionState) {
		s.Identity = nil
		s.Role = ""
		s.Err = err
		s.Loading = false
	}
}

func stateFrom(resolved *domain.ResolvedSession, err error, phase domain.Phase) domain.SessionState {
	st := domain.SessionState{Phase: phase}
	switch {
	case err != nil:
		st.Err = err
	case resolved != nil:
		identity := resolved.Identity
		st.Identity = &identity
		st.Role = resolved.Role
	}
	return st
}
