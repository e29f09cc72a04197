package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
)

type reconcilerFixture struct {
	provider *stubProvider
	repo     *stubProfileRepo
	queue    *syncQueue
	rec      *Reconciler
}

func newReconcilerFixture(signedIn *domain.Identity, seed ...*domain.Profile) *reconcilerFixture {
	provider := newStubProvider(signedIn)
	repo := newStubProfileRepo(seed...)
	roles, _ := newTestResolver(repo)
	boot := NewBootstrapper(provider, repo, roles, time.Second, zerolog.Nop())
	queue := &syncQueue{}
	return &reconcilerFixture{
		provider: provider,
		repo:     repo,
		queue:    queue,
		rec:      NewReconciler(provider, boot, roles, queue, zerolog.Nop()),
	}
}

func sessionFor(id *domain.Identity) *domain.Session {
	return &domain.Session{AccessToken: "access", RefreshToken: "refresh", Identity: *id}
}

func TestReconciler_InitialState(t *testing.T) {
	f := newReconcilerFixture(nil)
	st := f.rec.State()
	if st.Phase != domain.PhaseUninitialized || !st.Loading || st.Identity != nil {
		t.Fatalf("unexpected initial state: %+v", st)
	}
}

func TestReconciler_Start_SignedIn(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())

	st := f.rec.State()
	if st.Phase != domain.PhaseReady || st.Loading || st.Err != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Identity == nil || st.Identity.ID != "u1" || !st.IsAdmin() {
		t.Fatalf("expected admin u1, got %+v", st)
	}
}

func TestReconciler_Start_Anonymous(t *testing.T) {
	f := newReconcilerFixture(nil)
	f.rec.Start(context.Background())

	st := f.rec.State()
	if st.Phase != domain.PhaseReady || st.Loading || st.Identity != nil || st.Err != nil {
		t.Fatalf("expected ready anonymous state, got %+v", st)
	}
}

func TestReconciler_Start_ProviderFailureIsRecoverableError(t *testing.T) {
	f := newReconcilerFixture(nil)
	f.provider.err = errBackend
	f.rec.Start(context.Background())

	st := f.rec.State()
	if st.Phase != domain.PhaseReady || st.Loading {
		t.Fatalf("expected ready, not loading: %+v", st)
	}
	if !errors.Is(st.Err, domain.ErrProviderUnavailable) || st.Identity != nil {
		t.Fatalf("expected recorded provider error without identity, got %+v", st)
	}
}

func TestReconciler_Start_SecondCallIgnored(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleStudent))
	f.rec.Start(context.Background())
	f.rec.Start(context.Background())

	if f.provider.calls != 1 {
		t.Fatalf("expected one bootstrap, got %d", f.provider.calls)
	}
	if f.queue.started != 1 {
		t.Fatalf("expected queue started once, got %d", f.queue.started)
	}
}

func TestReconciler_EventsBeforeReadyAreDiscarded(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleStudent))
	f.provider.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		f.rec.Start(context.Background())
		close(done)
	}()
	<-f.provider.called

	if st := f.rec.State(); st.Phase != domain.PhaseInitializing || !st.Loading {
		t.Fatalf("expected INITIALIZING while bootstrap runs, got %+v", st)
	}

	intruder := identity("intruder")
	f.provider.emit(domain.AuthEvent{Kind: domain.EventInitialSession, Session: sessionFor(intruder)})
	f.provider.emit(domain.AuthEvent{Kind: domain.EventSignedIn, Session: sessionFor(intruder)})

	close(f.provider.block)
	<-done

	st := f.rec.State()
	if st.Identity == nil || st.Identity.ID != "u1" {
		t.Fatalf("expected only the bootstrap result to populate state, got %+v", st)
	}
	if f.repo.get("intruder") != nil {
		t.Fatalf("discarded event must not provision a profile")
	}
}

func TestReconciler_InitialSessionAfterReadyIsDiscarded(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleStudent), profile("u2", domain.RoleAdmin))
	f.rec.Start(context.Background())
	before := f.rec.State()

	f.provider.emit(domain.AuthEvent{Kind: domain.EventInitialSession, Session: sessionFor(identity("u2"))})
	f.provider.emit(domain.AuthEvent{Kind: domain.EventInitialSession})

	after := f.rec.State()
	if after.Identity.ID != before.Identity.ID || after.Role != before.Role {
		t.Fatalf("initial session replay mutated state: before %+v after %+v", before, after)
	}
}

func TestReconciler_SignedOutClearsState(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *reconcilerFixture)
	}{
		{"signed in", func(f *reconcilerFixture) {}},
		{"with error", func(f *reconcilerFixture) { f.provider.err = errBackend }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
			tc.setup(f)
			f.rec.Start(context.Background())

			f.provider.emit(domain.AuthEvent{Kind: domain.EventSignedOut})

			st := f.rec.State()
			if st.Identity != nil || st.Err != nil || st.Role != "" || st.IsAdmin() {
				t.Fatalf("expected cleared state, got %+v", st)
			}
		})
	}
}

func TestReconciler_SignedInKnownProfile(t *testing.T) {
	f := newReconcilerFixture(nil, profile("u2", domain.RoleAdmin))
	f.rec.Start(context.Background())

	f.provider.emit(domain.AuthEvent{Kind: domain.EventSignedIn, Session: sessionFor(identity("u2"))})

	st := f.rec.State()
	if st.Identity == nil || st.Identity.ID != "u2" || st.Role != domain.RoleAdmin {
		t.Fatalf("expected admin u2, got %+v", st)
	}
	if f.repo.inserts != 0 {
		t.Errorf("known profile must not be inserted")
	}
}

func TestReconciler_SignedInNewIdentityProvisions(t *testing.T) {
	f := newReconcilerFixture(nil, profile("owner", domain.RoleAdmin))
	f.rec.Start(context.Background())

	f.provider.emit(domain.AuthEvent{Kind: domain.EventSignedIn, Session: sessionFor(identity("fresh"))})

	st := f.rec.State()
	if st.Identity == nil || st.Identity.ID != "fresh" || st.Role != domain.RoleStudent {
		t.Fatalf("expected student fresh, got %+v", st)
	}
	if p := f.repo.get("fresh"); p == nil || p.Role != domain.RoleStudent {
		t.Fatalf("expected provisioned student profile, got %+v", p)
	}
}

func TestReconciler_LiveLookupFailureClearsIdentity(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())
	f.repo.setFindErr(errBackend)

	f.provider.emit(domain.AuthEvent{Kind: domain.EventTokenRefreshed, Session: sessionFor(identity("u1"))})

	st := f.rec.State()
	if st.Identity != nil || st.IsAdmin() {
		t.Fatalf("expected identity cleared, got %+v", st)
	}
	if !errors.Is(st.Err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected recorded error, got %v", st.Err)
	}
	if f.repo.inserts != 0 {
		t.Errorf("a failed lookup must not trigger provisioning")
	}
}

func TestReconciler_EventWithoutSessionIgnored(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleStudent))
	f.rec.Start(context.Background())

	f.provider.emit(domain.AuthEvent{Kind: domain.EventUserUpdated})

	if st := f.rec.State(); st.Identity == nil || st.Identity.ID != "u1" {
		t.Fatalf("event without session must not change state, got %+v", st)
	}
}

func TestReconciler_Retry(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.provider.err = errBackend
	f.rec.Start(context.Background())
	if f.rec.State().Err == nil {
		t.Fatalf("expected initial error")
	}

	f.provider.set(identity("u1"), nil)
	if err := f.rec.Retry(context.Background()); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}

	st := f.rec.State()
	if st.Err != nil || st.Loading || st.Identity == nil || !st.IsAdmin() || st.Phase != domain.PhaseReady {
		t.Fatalf("expected recovered admin state, got %+v", st)
	}
}

func TestReconciler_RetryFailureRecorded(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())

	f.provider.set(nil, errBackend)
	err := f.rec.Retry(context.Background())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	st := f.rec.State()
	if st.Identity != nil || !errors.Is(st.Err, domain.ErrProviderUnavailable) || st.Loading {
		t.Fatalf("expected state replaced with error, got %+v", st)
	}
}

func TestReconciler_RetryCancelledByCallerKeepsState(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())

	f.repo.mu.Lock()
	f.repo.findBlock = make(chan struct{})
	f.repo.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := f.rec.Retry(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}
	st := f.rec.State()
	if st.Err != nil || st.Loading || st.Identity == nil || st.Identity.ID != "u1" || !st.IsAdmin() {
		t.Fatalf("expected previous admin state kept, got %+v", st)
	}
}

func TestReconciler_RetryBeforeStart(t *testing.T) {
	f := newReconcilerFixture(nil)
	if err := f.rec.Retry(context.Background()); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestReconciler_SignOut(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())

	if err := f.rec.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := f.rec.State(); st.Identity != nil || st.Role != "" {
		t.Fatalf("expected cleared state, got %+v", st)
	}
	if f.provider.signOuts != 1 {
		t.Errorf("expected provider sign out")
	}
}

func TestReconciler_SignOutProviderErrorPropagates(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())
	f.provider.signOutErr = errBackend

	if err := f.rec.SignOut(context.Background()); err != errBackend {
		t.Fatalf("expected provider error unchanged, got %v", err)
	}
	if st := f.rec.State(); st.Identity == nil {
		t.Fatalf("failed sign out must keep the session")
	}
}

func TestReconciler_CloseStopsMutation(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.rec.Start(context.Background())
	f.rec.Close()

	if !f.provider.unsubbed || !f.queue.stopped {
		t.Fatalf("expected unsubscribe and queue stop")
	}

	before := f.rec.State()
	f.rec.receive(domain.AuthEvent{Kind: domain.EventSignedOut})
	f.rec.apply(context.Background(), domain.AuthEvent{Kind: domain.EventSignedOut})
	if err := f.rec.Retry(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}

	after := f.rec.State()
	if after.Identity == nil || after.Identity.ID != before.Identity.ID {
		t.Fatalf("state mutated after close: %+v", after)
	}
	f.rec.Close()
}

func TestReconciler_CloseDuringBootstrapDropsResult(t *testing.T) {
	f := newReconcilerFixture(identity("u1"), profile("u1", domain.RoleAdmin))
	f.provider.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		f.rec.Start(context.Background())
		close(done)
	}()
	<-f.provider.called
	f.rec.Close()
	close(f.provider.block)
	<-done

	if st := f.rec.State(); st.Identity != nil || st.Phase == domain.PhaseReady {
		t.Fatalf("late bootstrap result applied after close: %+v", st)
	}
}
