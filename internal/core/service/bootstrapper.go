package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/metrics"
	"github.com/classroomhub/classroom/internal/pkg/flight"
)

const defaultCallTimeout = 5 * time.Second

// Bootstrapper resolves the signed-in identity and provisions its profile.
type Bootstrapper struct {
	provider    ports.IdentityProvider
	repo        ports.ProfileRepository
	roles       *RoleResolver
	callTimeout time.Duration
	log         zerolog.Logger

	inflight flight.Group[struct{}]
	now      func() time.Time
}

// NewBootstrapper wires the bootstrapper. callTimeout bounds every provider
// and store call other than role reads, which use the resolver's own timeout.
func NewBootstrapper(
	provider ports.IdentityProvider,
	repo ports.ProfileRepository,
	roles *RoleResolver,
	callTimeout time.Duration,
	log zerolog.Logger,
) *Bootstrapper {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Bootstrapper{
		provider:    provider,
		repo:        repo,
		roles:       roles,
		callTimeout: callTimeout,
		log:         log,
		now:         time.Now,
	}
}

// ResolveCurrentSession returns the signed-in identity and its role, or
// nil, nil when nobody is signed in.
func (b *Bootstrapper) ResolveCurrentSession(ctx context.Context) (*domain.ResolvedSession, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.SessionResolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var identity *domain.Identity
	err := bounded(ctx, b.callTimeout, "current identity", func(ctx context.Context) error {
		var err error
		identity, err = b.provider.CurrentIdentity(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if identity == nil {
		outcome = "anonymous"
		return nil, nil
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("resolve session: %w", domain.ErrInvalidIdentity)
	}

	var role domain.Role
	profile, err := b.roles.LookupProfile(ctx, identity.ID)
	switch {
	case err == nil:
		if profile.ContactDiffers(*identity) {
			if err := b.updateContact(ctx, *identity); err != nil {
				b.log.Warn().Err(err).Str("identity_id", identity.ID).Msg("failed to refresh profile contact fields")
			}
		}
		role = domain.NormalizeRole(string(profile.Role))
	case errors.Is(err, domain.ErrProfileNotFound):
		if err := b.EnsureProfile(ctx, *identity); err != nil {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
		role = b.roles.GetRoleWithRetry(ctx, identity.ID)
	default:
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	outcome = "signed_in"
	b.log.Info().Str("identity_id", identity.ID).Str("role", string(role)).Msg("session resolved")
	return &domain.ResolvedSession{Identity: *identity, Role: role}, nil
}

// EnsureProfile makes sure a profile exists for identity. Concurrent calls for
// the same identity ID share one provisioning operation; the key is released
// as soon as that operation finishes. A uniqueness violation at insert time
// counts as success.
func (b *Bootstrapper) EnsureProfile(ctx context.Context, identity domain.Identity) error {
	if identity.ID == "" {
		return domain.ErrInvalidIdentity
	}

	// The shared operation outlives any single caller's cancellation; each
	// store call inside it is still bounded.
	opCtx := context.WithoutCancel(ctx)
	_, shared, err := b.inflight.Do(ctx, identity.ID, func() (struct{}, error) {
		return struct{}{}, b.provision(opCtx, identity)
	})
	if shared {
		metrics.ProvisionSharedTotal.Inc()
	}
	return err
}

func (b *Bootstrapper) provision(ctx context.Context, identity domain.Identity) error {
	existing, err := b.roles.LookupProfile(ctx, identity.ID)
	switch {
	case err == nil:
		if existing.ContactDiffers(identity) {
			if err := b.updateContact(ctx, identity); err != nil {
				metrics.ProfilesProvisionedTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("ensure profile: %w", err)
			}
		}
		metrics.ProfilesProvisionedTotal.WithLabelValues("updated").Inc()
		return nil
	case !errors.Is(err, domain.ErrProfileNotFound):
		metrics.ProfilesProvisionedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ensure profile: %w", err)
	}

	var count int64
	err = bounded(ctx, b.callTimeout, "count profiles", func(ctx context.Context) error {
		var err error
		count, err = b.repo.Count(ctx)
		return err
	})
	if err != nil {
		metrics.ProfilesProvisionedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ensure profile: %w", err)
	}

	profile := domain.NewProfile(identity, domain.InitialRole(count), b.now().UTC())
	err = bounded(ctx, b.callTimeout, "insert profile", func(ctx context.Context) error {
		return b.repo.Insert(ctx, profile)
	})
	switch {
	case errors.Is(err, domain.ErrProfileExists):
		b.log.Debug().Str("identity_id", identity.ID).Msg("profile provisioned concurrently elsewhere")
		metrics.ProfilesProvisionedTotal.WithLabelValues("exists").Inc()
		return nil
	case err != nil:
		metrics.ProfilesProvisionedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ensure profile: %w", err)
	}

	metrics.ProfilesProvisionedTotal.WithLabelValues("created_" + string(profile.Role)).Inc()
	b.log.Info().
		Str("identity_id", identity.ID).
		Str("email", identity.Email).
		Str("role", string(profile.Role)).
		Msg("profile provisioned")
	return nil
}

func (b *Bootstrapper) updateContact(ctx context.Context, identity domain.Identity) error {
	return bounded(ctx, b.callTimeout, "update profile contact", func(ctx context.Context) error {
		return b.repo.UpdateContact(ctx, identity.ID, identity.Email, identity.Name, identity.AvatarURL, b.now().UTC())
	})
}
