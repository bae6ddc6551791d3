package queuehub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/metrics"
)

const (
	DefaultOutboxSize    = 1024
	defaultOutboxTimeout = 2 * time.Second
)

var (
	ErrOutboxFull   = errors.New("queuehub: outbox full")
	ErrOutboxClosed = errors.New("queuehub: outbox closed")
)

// Outbox decouples callers from a downstream publisher. Publish never
// blocks; one goroutine drains the buffer so events reach the downstream
// publisher in the order they were accepted.
type Outbox struct {
	next    Publisher
	events  chan Event
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.QueueMetrics

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// NewOutbox starts draining into next. size <= 0 uses DefaultOutboxSize.
func NewOutbox(next Publisher, size int, logger zerolog.Logger, qm *metrics.QueueMetrics) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &Outbox{
		next:    next,
		events:  make(chan Event, size),
		timeout: defaultOutboxTimeout,
		logger:  logger.With().Str("component", "queue_outbox").Logger(),
		metrics: qm,
		done:    make(chan struct{}),
	}
	go o.drain()
	return o
}

// Publish enqueues event. A full buffer drops it and returns ErrOutboxFull.
func (o *Outbox) Publish(_ context.Context, event Event) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.events <- event:
		return nil
	default:
		o.metrics.ObserveDrop()
		return ErrOutboxFull
	}
}

func (o *Outbox) drain() {
	defer close(o.done)
	for ev := range o.events {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := o.next.Publish(ctx, ev); err != nil {
			o.logger.Warn().Err(err).
				Str("event", string(ev.Type)).
				Str("booking_id", ev.BookingID).
				Msg("queue event not delivered")
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queued ones to be handed
// downstream, or for ctx to end.
func (o *Outbox) Close(ctx context.Context) error {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.events)
		o.mu.Unlock()
	})
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
