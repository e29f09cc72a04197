package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classroomhub/classroom/internal/core/domain"
)

// bounded runs fn under a deadline of d. The deadline cancels the driver call
// at the transport. Domain branch signals (not found, already exists, invalid
// identity) pass through untouched, as does the caller's own cancellation.
// Every other failure, including expiry of d, is reported as
// domain.ErrProviderUnavailable.
func bounded(parent context.Context, d time.Duration, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrProfileExists),
		errors.Is(err, domain.ErrInvalidIdentity):
		return err
	case parent.Err() != nil:
		return fmt.Errorf("%s: %w", op, parent.Err())
	case errors.Is(err, domain.ErrProviderUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderUnavailable, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderUnavailable, err)
	}
}
