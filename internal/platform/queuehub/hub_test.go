package queuehub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicq/clinicq/internal/platform/metrics"
)

var (
	orgA    = uuid.MustParse("6f1c2a0e-3b4d-4e5f-8a9b-0c1d2e3f4a5b")
	doctorD = uuid.MustParse("0b8f7c3e-9d6a-4b21-8e5f-1a2b3c4d5e6f")
)

func testKey() ChannelKey {
	return ChannelKey{OrganizationID: orgA, DoctorID: doctorD, Date: "2025-06-02"}
}

func recv(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func bookingEvent(typ EventType, patientID string, serial int) Event {
	k := testKey()
	return Event{
		Type:           typ,
		OrganizationID: k.OrganizationID,
		DoctorID:       k.DoctorID,
		Date:           k.Date,
		BookingID:      uuid.NewString(),
		PatientID:      patientID,
		Serial:         &serial,
	}
}

func TestHub_SubscribeSendsConnected(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(testKey(), "")

	ev := recv(t, sub)
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, doctorD, ev.DoctorID)
	assert.Equal(t, "2025-06-02", ev.Date)
	assert.Equal(t, 1, hub.SubscriberCount(testKey()))
}

func TestHub_PublishOrderPreserved(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(testKey(), "")
	recv(t, sub)

	for i := 1; i <= 5; i++ {
		require.NoError(t, hub.Publish(context.Background(), bookingEvent(EventBookingCreated, "p", i)))
	}
	for i := 1; i <= 5; i++ {
		ev := recv(t, sub)
		require.NotNil(t, ev.Serial)
		assert.Equal(t, i, *ev.Serial)
	}
}

func TestHub_OnlyMatchingChannel(t *testing.T) {
	hub := NewHub()
	same := hub.Subscribe(testKey(), "")
	otherDay := hub.Subscribe(ChannelKey{OrganizationID: orgA, DoctorID: doctorD, Date: "2025-06-03"}, "")
	otherOrg := hub.Subscribe(ChannelKey{OrganizationID: uuid.New(), DoctorID: doctorD, Date: "2025-06-02"}, "")
	for _, s := range []*Subscriber{same, otherDay, otherOrg} {
		recv(t, s)
	}

	require.NoError(t, hub.Publish(context.Background(), bookingEvent(EventBookingCreated, "p1", 1)))

	assert.Equal(t, EventBookingCreated, recv(t, same).Type)
	assertEmpty(t, otherDay)
	assertEmpty(t, otherOrg)
}

func TestHub_PatientFilterExactMatch(t *testing.T) {
	hub := NewHub()
	filtered := hub.Subscribe(testKey(), "patient-1")
	all := hub.Subscribe(testKey(), "")
	recv(t, filtered)
	recv(t, all)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, bookingEvent(EventBookingCreated, "patient-1", 1)))
	// Shares a prefix with the filter; must not be delivered.
	require.NoError(t, hub.Publish(ctx, bookingEvent(EventBookingCreated, "patient-10", 2)))
	require.NoError(t, hub.Publish(ctx, bookingEvent(EventBookingCreated, "patient", 3)))

	ev := recv(t, filtered)
	assert.Equal(t, "patient-1", ev.PatientID)
	assertEmpty(t, filtered)

	for i := 0; i < 3; i++ {
		recv(t, all)
	}
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := NewHub(WithBufferSize(2), WithMetrics(metrics.NewQueueMetrics(reg)))
	sub := hub.Subscribe(testKey(), "") // connected occupies one slot

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			_ = hub.Publish(context.Background(), bookingEvent(EventBookingUpdated, "p", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(4), sub.Dropped())
	assert.Equal(t, EventConnected, recv(t, sub).Type)
	assert.Equal(t, 1, *recv(t, sub).Serial)
}

func TestHub_UnsubscribeDeletesEmptyChannel(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(testKey(), "")
	b := hub.Subscribe(testKey(), "")
	assert.Equal(t, 1, hub.ChannelCount())

	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.SubscriberCount(testKey()))
	hub.Unsubscribe(b)
	assert.Equal(t, 0, hub.ChannelCount())

	// Idempotent.
	hub.Unsubscribe(b)
	assert.Equal(t, 0, hub.ChannelCount())
}

func TestHub_PrunesClosedSubscribersOnPublish(t *testing.T) {
	hub := NewHub()
	gone := hub.Subscribe(testKey(), "")
	live := hub.Subscribe(testKey(), "")
	recv(t, live)

	gone.Close()
	assert.Equal(t, 2, hub.SubscriberCount(testKey()))

	require.NoError(t, hub.Publish(context.Background(), bookingEvent(EventBookingCreated, "p", 1)))
	assert.Equal(t, 1, hub.SubscriberCount(testKey()))
	assert.Equal(t, EventBookingCreated, recv(t, live).Type)
}

func TestHub_ConcurrentPublishSubscribe(t *testing.T) {
	hub := NewHub(WithBufferSize(1024))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(testKey(), "")
			hub.Unsubscribe(sub)
		}()
		go func(n int) {
			defer wg.Done()
			_ = hub.Publish(context.Background(), bookingEvent(EventBookingCreated, "p", n))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.ChannelCount())
}
