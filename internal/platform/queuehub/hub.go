package queuehub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/metrics"
)

const DefaultBufferSize = 64

// Subscriber is one live transport attached to a channel.
type Subscriber struct {
	ID        string
	Key       ChannelKey
	PatientID string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// Events delivers the subscriber's events in publish order.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Done is closed once the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Close marks the transport as gone. The hub prunes closed subscribers on the
// next publish to their channel.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) accepts(e Event) bool {
	return s.PatientID == "" || s.PatientID == e.PatientID
}

// Hub is the process-local registry of queue subscribers. All operations are
// safe for concurrent use.
type Hub struct {
	mu       sync.Mutex
	channels map[ChannelKey]map[*Subscriber]struct{}
	buffer   int
	metrics  *metrics.QueueMetrics
	now      func() time.Time
}

type Option func(*Hub)

// WithBufferSize sets the per-subscriber buffer. Events beyond it are dropped
// for that subscriber.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithMetrics(m *metrics.QueueMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		channels: make(map[ChannelKey]map[*Subscriber]struct{}),
		buffer:   DefaultBufferSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber on key and enqueues a connected event for
// it. A non-empty patientID restricts delivery to that patient's events.
func (h *Hub) Subscribe(key ChannelKey, patientID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		Key:       key,
		PatientID: patientID,
		events:    make(chan Event, h.buffer),
		done:      make(chan struct{}),
	}
	sub.events <- Event{
		Type:           EventConnected,
		OrganizationID: key.OrganizationID,
		DoctorID:       key.DoctorID,
		PatientID:      patientID,
		Date:           key.Date,
		Timestamp:      h.now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.channels[key] = set
	}
	set[sub] = struct{}{}
	h.metrics.SubscriberAdded()
	return sub
}

// Unsubscribe removes sub and deletes its channel when it becomes empty.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	sub.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	set, ok := h.channels[sub.Key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	h.metrics.SubscriberRemoved()
	if len(set) == 0 {
		delete(h.channels, sub.Key)
	}
}

// Publish delivers event to every subscriber of its channel. Delivery never
// blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now().UTC()
	}
	h.metrics.ObservePublish(string(event.Type))

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.channels[event.Key()] {
		if sub.closed() {
			h.removeLocked(sub)
			continue
		}
		if !sub.accepts(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			sub.dropped.Add(1)
			h.metrics.ObserveDrop()
		}
	}
	return nil
}

// SubscriberCount returns the number of subscribers on key.
func (h *Hub) SubscriberCount(key ChannelKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[key])
}

// ChannelCount returns the number of channels with at least one subscriber.
func (h *Hub) ChannelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}
