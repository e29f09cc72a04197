package gotrue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/metrics"
	"github.com/classroomhub/classroom/internal/pkg/flight"
)

const (
	defaultRefreshMargin = time.Minute
	defaultCheckInterval = 15 * time.Second
	oauthProvider        = "google"
)

// Options tunes the provider.
type Options struct {
	// RefreshMargin is how long before expiry the access token is refreshed.
	RefreshMargin time.Duration
	// CheckInterval is how often Run looks at the token expiry.
	CheckInterval time.Duration
}

// Provider holds the daemon's single auth session and implements
// ports.IdentityProvider and ports.SignInProvider on top of Client.
type Provider struct {
	client *Client
	claims *ClaimsParser
	store  ports.SessionStore // nil disables persistence
	opts   Options
	log    zerolog.Logger
	now    func() time.Time

	refresh flight.Group[*domain.Session]

	mu      sync.Mutex
	session *domain.Session
	subs    map[int]ports.AuthEventHandler
	nextSub int
}

var (
	_ ports.IdentityProvider = (*Provider)(nil)
	_ ports.SignInProvider   = (*Provider)(nil)
)

func NewProvider(client *Client, claims *ClaimsParser, store ports.SessionStore, opts Options, log zerolog.Logger) *Provider {
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = defaultRefreshMargin
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	return &Provider{
		client: client,
		claims: claims,
		store:  store,
		opts:   opts,
		log:    log,
		now:    time.Now,
		subs:   make(map[int]ports.AuthEventHandler),
	}
}

// CurrentIdentity returns the identity of the held session after validating it
// with the server, refreshing first when the access token is due. A session
// the server rejects is dropped and reported as no session.
func (p *Provider) CurrentIdentity(ctx context.Context) (*domain.Identity, error) {
	sess := p.current()
	if sess == nil {
		return nil, nil
	}

	if sess.Expired(p.now(), p.opts.RefreshMargin) {
		refreshed, err := p.refreshSession(ctx, sess)
		if err != nil {
			if isRejected(err) {
				return nil, nil
			}
			return nil, err
		}
		sess = refreshed
	}

	identity, err := p.client.GetUser(ctx, sess.AccessToken)
	switch {
	case isRejected(err):
		p.log.Info().Str("identity_id", sess.Identity.ID).Msg("stored session rejected by auth service")
		p.drop(ctx, sess)
		return nil, nil
	case err != nil:
		return nil, err
	}

	p.mu.Lock()
	if p.session == sess {
		updated := *sess
		updated.Identity = *identity
		p.session = &updated
	}
	p.mu.Unlock()
	return identity, nil
}

// Subscribe registers handler. The held session is announced to it as
// INITIAL_SESSION asynchronously.
func (p *Provider) Subscribe(handler ports.AuthEventHandler) ports.Subscription {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = handler
	initial := copySession(p.session)
	p.mu.Unlock()

	go handler(domain.AuthEvent{Kind: domain.EventInitialSession, Session: initial, At: p.now()})

	return subscription(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	})
}

// SignOut revokes the session at the server and forgets it locally. Transport
// failures are returned and the session is kept.
func (p *Provider) SignOut(ctx context.Context) error {
	sess := p.current()
	if sess == nil {
		return nil
	}
	if err := p.client.Logout(ctx, sess.AccessToken); err != nil {
		return err
	}
	p.drop(ctx, sess)
	return nil
}

// AuthorizeURL returns the Google OAuth start URL.
func (p *Provider) AuthorizeURL(redirectTo string) (string, error) {
	return p.client.AuthorizeURL(oauthProvider, redirectTo)
}

// SetSession adopts the token pair handed over by the OAuth callback and
// announces it as SIGNED_IN.
func (p *Provider) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("set session: %w: missing token", domain.ErrSessionRejected)
	}
	claimed, exp, err := p.claims.Parse(accessToken)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	identity, err := p.client.GetUser(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if identity.ID != claimed.ID {
		return fmt.Errorf("set session: %w: token subject mismatch", domain.ErrSessionRejected)
	}

	sess := &domain.Session{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: exp, Identity: *identity}
	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()

	p.persist(ctx, sess)
	p.log.Info().Str("identity_id", identity.ID).Msg("signed in")
	p.emit(domain.EventSignedIn, sess)
	return nil
}

// Restore loads a persisted session, if any. It must run before the reconciler
// starts; no event is emitted because the session becomes the initial one.
func (p *Provider) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	sess, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if sess == nil {
		return nil
	}

	p.mu.Lock()
	p.session = sess
	p.mu.Unlock()
	p.log.Info().Str("identity_id", sess.Identity.ID).Time("expires_at", sess.ExpiresAt).Msg("session restored")
	return nil
}

// Run refreshes the access token ahead of expiry until ctx is done.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshIfDue(ctx)
		}
	}
}

func (p *Provider) refreshIfDue(ctx context.Context) {
	sess := p.current()
	if sess == nil || !sess.Expired(p.now(), p.opts.RefreshMargin) {
		return
	}
	if _, err := p.refreshSession(ctx, sess); err != nil && !isRejected(err) {
		p.log.Warn().Err(err).Msg("token refresh failed, will retry")
	}
}

// refreshSession exchanges the refresh token of sess. Concurrent callers share
// one exchange. A rejected refresh token signs the session out.
func (p *Provider) refreshSession(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	refreshed, _, err := p.refresh.Do(ctx, sess.RefreshToken, func() (*domain.Session, error) {
		return p.client.RefreshSession(context.WithoutCancel(ctx), sess.RefreshToken)
	})
	switch {
	case isRejected(err):
		metrics.TokenRefreshesTotal.WithLabelValues("rejected").Inc()
		p.log.Info().Str("identity_id", sess.Identity.ID).Msg("refresh token rejected, signing out")
		p.drop(ctx, sess)
		return nil, err
	case err != nil:
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if refreshed.Identity.ID == "" {
		refreshed.Identity = sess.Identity
	}

	// Only the first caller to see the result installs it; a session replaced
	// or signed out in the meantime is left alone.
	p.mu.Lock()
	installed := p.session == sess
	if installed {
		p.session = refreshed
	}
	p.mu.Unlock()

	if installed {
		metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
		p.persist(ctx, refreshed)
		p.emit(domain.EventTokenRefreshed, refreshed)
	}
	return refreshed, nil
}

// drop forgets sess if it is still the held session and announces SIGNED_OUT.
func (p *Provider) drop(ctx context.Context, sess *domain.Session) {
	p.mu.Lock()
	if p.session != sess {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.Clear(ctx); err != nil {
			p.log.Warn().Err(err).Msg("failed to clear persisted session")
		}
	}
	p.emit(domain.EventSignedOut, nil)
}

func (p *Provider) persist(ctx context.Context, sess *domain.Session) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, sess); err != nil {
		p.log.Warn().Err(err).Msg("failed to persist session")
	}
}

// emit delivers an event synchronously to every subscriber, so events emitted
// from one goroutine arrive in order.
func (p *Provider) emit(kind domain.AuthEventKind, sess *domain.Session) {
	p.mu.Lock()
	handlers := make([]ports.AuthEventHandler, 0, len(p.subs))
	for _, h := range p.subs {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	event := domain.AuthEvent{Kind: kind, Session: copySession(sess), At: p.now()}
	for _, h := range handlers {
		h(event)
	}
}

func (p *Provider) current() *domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

type subscription func()

func (s subscription) Unsubscribe() { s() }

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
