package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
	"github.com/classroomhub/classroom/internal/metrics"
)

const defaultBuffer = 64

// Dispatcher hands auth events to a single worker goroutine, so they are
// applied one at a time in arrival order.
type Dispatcher struct {
	events chan domain.AuthEvent
	done   chan struct{}
	log    zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

var _ ports.EventQueue = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher holding up to buffer pending events.
// If buffer <= 0, defaultBuffer is used.
func NewDispatcher(buffer int, log zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Dispatcher{
		events: make(chan domain.AuthEvent, buffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Start launches the worker. It stops when ctx is cancelled or Stop is called.
// Later calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context, process ports.AuthEventProcessor) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run(ctx, process)
	})
}

// Enqueue never blocks: it reports false when the dispatcher is stopped or the
// buffer is full.
func (d *Dispatcher) Enqueue(event domain.AuthEvent) bool {
	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.events <- event:
		metrics.EventQueueDepth.Set(float64(len(d.events)))
		return true
	default:
		d.log.Warn().Str("kind", string(event.Kind)).Int("buffer", cap(d.events)).Msg("auth event queue full")
		return false
	}
}

// Stop signals the worker to exit. Events still buffered are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// Wait blocks until the worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, process ports.AuthEventProcessor) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case event := <-d.events:
			metrics.EventQueueDepth.Set(float64(len(d.events)))
			d.log.Debug().Str("kind", string(event.Kind)).Msg("applying auth event")
			process(ctx, event)
		}
	}
}
