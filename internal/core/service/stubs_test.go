package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Profile repository stub
// ---------------------------------------------------------------------------

type stubProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile

	findErrs  []error // returned in order, one per FindByID, before normal lookups
	findErr   error
	findBlock chan struct{} // FindByID waits for it (or ctx) when set
	countErr  error
	insertErr error
	updateErr error
	// insertGate holds Insert until closed.
	insertGate chan struct{}
	adminCount *int64 // overrides CountByRole(admin) when set

	findCalls      int
	inserts        int
	contactUpdates int
	roleUpdates    int
}

func newStubProfileRepo(seed ...*domain.Profile) *stubProfileRepo {
	r := &stubProfileRepo{profiles: make(map[string]*domain.Profile)}
	for _, p := range seed {
		r.profiles[p.ID] = p
	}
	return r
}

func (r *stubProfileRepo) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	block := r.findBlock
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if len(r.findErrs) > 0 {
		err := r.findErrs[0]
		r.findErrs = r.findErrs[1:]
		return nil, err
	}
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubProfileRepo) Insert(ctx context.Context, p *domain.Profile) error {
	if r.insertGate != nil {
		select {
		case <-r.insertGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.profiles[p.ID]; ok {
		return domain.ErrProfileExists
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *stubProfileRepo) UpdateContact(_ context.Context, id, email, name, avatarURL string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	r.contactUpdates++
	p.Email, p.Name, p.AvatarURL, p.UpdatedAt = email, name, avatarURL, at
	return nil
}

func (r *stubProfileRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.profiles)), nil
}

func (r *stubProfileRepo) CountByRole(_ context.Context, role domain.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == domain.RoleAdmin && r.adminCount != nil {
		return *r.adminCount, nil
	}
	var n int64
	for _, p := range r.profiles {
		if p.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *stubProfileRepo) List(_ context.Context) ([]*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *stubProfileRepo) UpdateRole(_ context.Context, id string, role domain.Role, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	p, ok := r.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	r.roleUpdates++
	p.Role, p.UpdatedAt = role, at
	return nil
}

func (r *stubProfileRepo) get(id string) *domain.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[id]
}

func (r *stubProfileRepo) setFindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findErr = err
}

// ---------------------------------------------------------------------------
// Identity provider stub
// ---------------------------------------------------------------------------

type stubProvider struct {
	mu         sync.Mutex
	identity   *domain.Identity
	err        error
	block      chan struct{} // CurrentIdentity waits for it when set
	called     chan struct{} // receives once per CurrentIdentity call
	calls      int
	handler    ports.AuthEventHandler
	unsubbed   bool
	signOutErr error
	signOuts   int
}

func newStubProvider(identity *domain.Identity) *stubProvider {
	return &stubProvider{identity: identity, called: make(chan struct{}, 16)}
}

func (p *stubProvider) CurrentIdentity(ctx context.Context) (*domain.Identity, error) {
	p.mu.Lock()
	p.calls++
	block := p.block
	p.mu.Unlock()
	p.called <- struct{}{}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if p.identity == nil {
		return nil, nil
	}
	id := *p.identity
	return &id, nil
}

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }

func (p *stubProvider) Subscribe(h ports.AuthEventHandler) ports.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
	return subscriptionFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.unsubbed = true
		p.handler = nil
	})
}

func (p *stubProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	return p.signOutErr
}

// emit delivers an event the way the real provider does: on its own goroutine
// of control, straight into the subscription callback.
func (p *stubProvider) emit(e domain.AuthEvent) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(e)
	}
}

func (p *stubProvider) set(identity *domain.Identity, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity, p.err = identity, err
}

// ---------------------------------------------------------------------------
// Synchronous event queue
// ---------------------------------------------------------------------------

type syncQueue struct {
	mu      sync.Mutex
	ctx     context.Context
	process ports.AuthEventProcessor
	stopped bool
	started int
}

func (q *syncQueue) Start(ctx context.Context, process ports.AuthEventProcessor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ctx, q.process = ctx, process
	q.started++
}

func (q *syncQueue) Enqueue(e domain.AuthEvent) bool {
	q.mu.Lock()
	if q.stopped || q.process == nil {
		q.mu.Unlock()
		return false
	}
	ctx, process := q.ctx, q.process
	q.mu.Unlock()
	process(ctx, e)
	return true
}

func (q *syncQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// delayRecorder is a backoff.BackOff that records each requested interval
// and lets the next attempt run immediately.
type delayRecorder struct {
	mu       sync.Mutex
	interval time.Duration
	delays   []time.Duration
}

func (d *delayRecorder) Reset() {}

func (d *delayRecorder) NextBackOff() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, d.interval)
	return 0
}

func (d *delayRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delays)
}

func newTestResolver(repo ports.ProfileRepository) (*RoleResolver, *delayRecorder) {
	rec := &delayRecorder{}
	r := NewRoleResolver(repo, RoleResolverOptions{Timeout: time.Second, MaxRetries: 3, RetryDelay: time.Second}, zerolog.Nop())
	r.newBackOff = func(d time.Duration) backoff.BackOff {
		rec.mu.Lock()
		rec.interval = d
		rec.mu.Unlock()
		return rec
	}
	return r, rec
}

func profile(id string, role domain.Role) *domain.Profile {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	return &domain.Profile{ID: id, Email: id + "@school.kr", Role: role, CreatedAt: now, UpdatedAt: now}
}

func identity(id string) *domain.Identity {
	return &domain.Identity{ID: id, Email: id + "@school.kr"}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
