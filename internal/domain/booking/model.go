package booking

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/validate"
)

type BookVia string

const (
	BookViaWeb    BookVia = "web"
	BookViaApp    BookVia = "app"
	BookViaWalkIn BookVia = "walk_in"
)

func (v BookVia) Valid() bool {
	switch v {
	case BookViaWeb, BookViaApp, BookViaWalkIn:
		return true
	}
	return false
}

// Booking maps to the bookings table. DailySerial is owned by the booking
// once allocated and is never renumbered.
type Booking struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	DoctorID          uuid.UUID  `db:"doctor_id" json:"doctorId"`
	ClinicID          uuid.UUID  `db:"clinic_id" json:"clinicId"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patientId"`
	AppointmentTypeID *uuid.UUID `db:"appointment_type_id" json:"appointmentTypeId,omitempty"`
	Status            Status     `db:"booking_status" json:"bookingStatus"`
	BookVia           BookVia    `db:"book_via" json:"bookVia"`
	DailySerial       int        `db:"daily_serial" json:"dailySerial"`
	SerialDate        time.Time  `db:"serial_date" json:"-"`
	ScheduledAt       *time.Time `db:"scheduled_at" json:"scheduledAt,omitempty"`
	CancelNote        *string    `db:"cancel_note" json:"cancelNote,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// Date returns the serial date as YYYY-MM-DD.
func (b *Booking) Date() string {
	return b.SerialDate.Format(validate.DateLayout)
}

func (b Booking) MarshalJSON() ([]byte, error) {
	type plain Booking
	return json.Marshal(struct {
		plain
		SerialDate string `json:"serialDate"`
	}{plain: plain(b), SerialDate: b.Date()})
}

// CreateRequest is the input to the admission pipeline.
type CreateRequest struct {
	DoctorID          uuid.UUID
	ClinicID          uuid.UUID
	PatientID         uuid.UUID
	AppointmentTypeID *uuid.UUID
	BookVia           BookVia
	SerialDate        time.Time
	ScheduledAt       *time.Time
}

// Patch is a partial booking update. Nil fields are left unchanged.
type Patch struct {
	Status      *Status
	CancelNote  *string
	ScheduledAt *time.Time
}

func (p Patch) empty() bool {
	return p.Status == nil && p.CancelNote == nil && p.ScheduledAt == nil
}

// Position is a booking's place among the day's active bookings.
type Position struct {
	BookingID            uuid.UUID `json:"bookingId"`
	DoctorID             uuid.UUID `json:"doctorId"`
	PatientID            uuid.UUID `json:"patientId"`
	Date                 string    `json:"date"`
	Serial               int       `json:"serial"`
	Status               Status    `json:"status"`
	Position             *int      `json:"position"`
	EstimatedWaitMinutes *int      `json:"estimatedWaitMinutes"`
}
