// Package flight provides a typed single-flight registry: concurrent calls
// sharing a key are served by one underlying operation.
package flight

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group de-duplicates concurrent calls by key. The key is released as soon
// as the leading call returns, whatever its outcome, so a later call starts
// a fresh operation.
type Group[T any] struct {
	g singleflight.Group

	mu      sync.Mutex
	waiting map[string]int
}

// Do runs fn once for all callers that arrive while a call for key is in
// flight. shared reports whether the outcome was delivered to more than one
// caller. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// in-flight call keeps running for everyone else, so fn must not depend on
// the cancellation of any single caller's context.
func (g *Group[T]) Do(ctx context.Context, key string, fn func() (T, error)) (v T, shared bool, err error) {
	ch := g.g.DoChan(key, func() (any, error) {
		return fn()
	})
	g.track(key, 1)
	defer g.track(key, -1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		v, _ = res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Waiting returns how many callers are currently attached to key.
func (g *Group[T]) Waiting(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting[key]
}

func (g *Group[T]) track(key string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.waiting == nil {
		g.waiting = make(map[string]int)
	}
	g.waiting[key] += delta
	if g.waiting[key] <= 0 {
		delete(g.waiting, key)
	}
}
