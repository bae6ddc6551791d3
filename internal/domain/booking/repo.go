package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a doctor's bookings for one date.
type ListFilter struct {
	DoctorID  uuid.UUID
	Date      time.Time
	Status    *Status
	PatientID *uuid.UUID
}

type Repository interface {
	// Admit allocates the next daily serial for b and inserts it in a single
	// transaction. b.DailySerial and timestamps are set on success.
	Admit(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// UpdateLocked locks the booking row, lets fn mutate it and persists the
	// result in the same transaction. fn returning an error rolls back.
	UpdateLocked(ctx context.Context, id uuid.UUID, fn func(b *Booking) error) (*Booking, error)
	// Delete physically removes the booking and returns the removed row.
	Delete(ctx context.Context, id uuid.UUID) (*Booking, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error)
	// ActiveQueue returns the pending and confirmed bookings of a doctor's
	// day ordered by serial.
	ActiveQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error)
	BookedSerials(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]int, error)
}
