// Package queuehub fans booking lifecycle events out to live subscribers of
// a doctor's daily queue. A Hub is process-local; RedisBroker relays events
// between instances.
package queuehub

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventConnected        EventType = "connected"
	EventPing             EventType = "ping"
	EventBookingCreated   EventType = "booking_created"
	EventBookingUpdated   EventType = "booking_updated"
	EventBookingCancelled EventType = "booking_cancelled"
	EventQueuePosition    EventType = "queue_position"
)

// Event is the wire shape delivered to subscribers.
type Event struct {
	Type                 EventType `json:"type"`
	OrganizationID       uuid.UUID `json:"organizationId"`
	BookingID            string    `json:"bookingId,omitempty"`
	DoctorID             uuid.UUID `json:"doctorId"`
	PatientID            string    `json:"patientId,omitempty"`
	Date                 string    `json:"date"`
	Serial               *int      `json:"serial,omitempty"`
	Status               string    `json:"status,omitempty"`
	Position             *int      `json:"position,omitempty"`
	EstimatedWaitMinutes *int      `json:"estimatedWaitMinutes,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// ChannelKey identifies one doctor's queue for one calendar day within an
// organization.
type ChannelKey struct {
	OrganizationID uuid.UUID
	DoctorID       uuid.UUID
	Date           string
}

// Key returns the channel an event belongs to.
func (e Event) Key() ChannelKey {
	return ChannelKey{OrganizationID: e.OrganizationID, DoctorID: e.DoctorID, Date: e.Date}
}

// Publisher accepts events for fan-out. Implemented by Hub and RedisBroker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
