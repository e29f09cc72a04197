package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/metrics"
)

const (
	defaultRoleTimeout    = 5 * time.Second
	defaultRoleMaxRetries = 3
	defaultRoleRetryDelay = time.Second
)

// RoleResolverOptions bounds role lookups. Zero values fall back to the defaults
// (5s timeout, 3 attempts, 1s between attempts).
type RoleResolverOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// RoleResolver reads roles from the profile store under a per-read deadline.
type RoleResolver struct {
	repo ports.ProfileRepository
	opts RoleResolverOptions
	log  zerolog.Logger

	newBackOff func(d time.Duration) backoff.BackOff
}

func constantBackOff(d time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(d)
}

func NewRoleResolver(repo ports.ProfileRepository, opts RoleResolverOptions, log zerolog.Logger) *RoleResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRoleTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultRoleMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRoleRetryDelay
	}
	return &RoleResolver{repo: repo, opts: opts, log: log, newBackOff: constantBackOff}
}

// LookupProfile performs one bounded read of the profile for id.
// It returns domain.ErrProfileNotFound when no profile exists and an error
// wrapping domain.ErrProviderUnavailable on timeout or any other failure.
func (r *RoleResolver) LookupProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if id == "" {
		return nil, domain.ErrInvalidIdentity
	}

	var p *domain.Profile
	err := bounded(ctx, r.opts.Timeout, "lookup profile", func(ctx context.Context) error {
		var err error
		p, err = r.repo.FindByID(ctx, id)
		return err
	})

	switch {
	case err == nil:
		metrics.RoleLookupsTotal.WithLabelValues("found").Inc()
		return p, nil
	case errors.Is(err, domain.ErrProfileNotFound):
		metrics.RoleLookupsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrProfileNotFound
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RoleLookupsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.RoleLookupsTotal.WithLabelValues("error").Inc()
	}
	return nil, err
}

// GetRole returns the normalised role stored for id.
func (r *RoleResolver) GetRole(ctx context.Context, id string) (domain.Role, error) {
	p, err := r.LookupProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return domain.NormalizeRole(string(p.Role)), nil
}

// GetRoleWithRetry never fails. A missing profile resolves to student at once;
// failures are retried up to MaxRetries attempts in total, RetryDelay apart,
// and exhaustion or cancellation also resolves to student.
func (r *RoleResolver) GetRoleWithRetry(ctx context.Context, id string) domain.Role {
	attempts := 0
	role, err := backoff.Retry(ctx, func() (domain.Role, error) {
		attempts++
		role, err := r.GetRole(ctx, id)
		if errors.Is(err, domain.ErrProfileNotFound) || errors.Is(err, domain.ErrInvalidIdentity) {
			return "", backoff.Permanent(err)
		}
		return role, err
	},
		backoff.WithBackOff(r.newBackOff(r.opts.RetryDelay)),
		backoff.WithMaxTries(uint(r.opts.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn().Err(err).Str("identity_id", id).Int("attempt", attempts).
				Dur("retry_in", next).Msg("role lookup failed, retrying")
			metrics.RoleLookupRetriesTotal.Inc()
		}),
	)

	switch {
	case err == nil:
		return role
	case errors.Is(err, domain.ErrProfileNotFound), errors.Is(err, domain.ErrInvalidIdentity):
		return domain.RoleStudent
	case ctx.Err() != nil:
		r.log.Warn().Err(err).Str("identity_id", id).Int("attempts", attempts).
			Msg("role lookup cancelled, defaulting to student")
		return domain.RoleStudent
	default:
		r.log.Warn().Err(err).Str("identity_id", id).Int("attempts", attempts).
			Msg("role lookup exhausted, defaulting to student")
		return domain.RoleStudent
	}
}
