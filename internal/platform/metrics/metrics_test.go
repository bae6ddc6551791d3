package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveCreate("ok")
	m.ObserveCreate("ok")
	m.ObserveCreate("conflict")
	m.ObserveSerialRetry()
	m.ObserveTransition("pending", "confirmed")
	m.ObserveAdmissionTx(3 * time.Millisecond)

	if got := testutil.ToFloat64(m.created.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.serialRetries); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
}

func TestQueueMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueueMetrics(reg)
	m.SubscriberAdded()
	m.SubscriberAdded()
	m.SubscriberRemoved()
	m.ObservePublish("booking_created")
	m.ObserveDrop()
	m.ObserveRelay()

	if got := testutil.ToFloat64(m.subscribers); got != 1 {
		t.Errorf("expected 1 subscriber, got %v", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Errorf("expected 1 drop, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveCreate("ok")
	b.ObserveSerialRetry()
	b.ObserveTransition("a", "b")
	b.ObserveAdmissionTx(time.Second)

	var q *QueueMetrics
	q.SubscriberAdded()
	q.SubscriberRemoved()
	q.ObservePublish("ping")
	q.ObserveDrop()
	q.ObserveRelay()
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/1", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/bookings/:id")

	err := m.Middleware()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("expected 1 series, got %d", n)
	}
}
