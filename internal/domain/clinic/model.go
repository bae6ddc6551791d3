package clinic

import (
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctors table.
type Doctor struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Specialty         *string   `db:"specialty" json:"specialty,omitempty"`
	YearsOfExperience int       `db:"years_of_experience" json:"yearsOfExperience"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// Clinic maps to the clinics table.
type Clinic struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Latitude  *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Assignment links a doctor to a clinic they practise at.
type Assignment struct {
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctorId"`
	ClinicID  uuid.UUID `db:"clinic_id" json:"clinicId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// AppointmentType is a descriptive visit category owned by a doctor.
type AppointmentType struct {
	ID              uuid.UUID `db:"id" json:"id"`
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctorId"`
	Name            string    `db:"name" json:"name"`
	Status          string    `db:"status" json:"status"`
	DurationMinutes int       `db:"duration_minutes" json:"durationMinutes"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

const (
	AppointmentTypeActive   = "active"
	AppointmentTypeInactive = "inactive"
)

var validAppointmentTypeStatuses = map[string]bool{
	AppointmentTypeActive:   true,
	AppointmentTypeInactive: true,
}
