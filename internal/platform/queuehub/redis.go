package queuehub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/metrics"
)

const channelPrefix = "clinicq:queue:"

// ChannelName returns the Redis channel carrying events for key.
func ChannelName(key ChannelKey) string {
	return fmt.Sprintf("%s%s:%s:%s", channelPrefix, key.OrganizationID, key.DoctorID, key.Date)
}

// RedisBroker publishes events through Redis pub/sub and relays every event
// received on the queue channels into the local hub, so subscribers on any
// instance see events published on any other.
type RedisBroker struct {
	client  *redis.Client
	hub     *Hub
	logger  zerolog.Logger
	metrics *metrics.QueueMetrics
}

func NewRedisBroker(client *redis.Client, hub *Hub, logger zerolog.Logger, m *metrics.QueueMetrics) *RedisBroker {
	return &RedisBroker{client: client, hub: hub, logger: logger, metrics: m}
}

// Publish sends event to Redis. Local delivery happens when the relay loop
// receives it back.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.hub.now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queuehub: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelName(event.Key()), data).Err(); err != nil {
		return fmt.Errorf("queuehub: redis publish: %w", err)
	}
	return nil
}

// Run subscribes to all queue channels and relays messages into the hub until
// ctx is cancelled. ready, if non-nil, is closed once the subscription is
// confirmed.
func (b *RedisBroker) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("queuehub: psubscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, msg)
		}
	}
}

func (b *RedisBroker) relay(ctx context.Context, msg *redis.Message) {
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("queuehub: dropping malformed event")
		return
	}
	if !strings.HasPrefix(msg.Channel, channelPrefix) || msg.Channel != ChannelName(ev.Key()) {
		b.logger.Warn().Str("channel", msg.Channel).Msg("queuehub: event does not match its channel")
		return
	}
	b.metrics.ObserveRelay()
	_ = b.hub.Publish(ctx, ev)
}
