package clinic

import (
	"context"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	Update(ctx context.Context, c *Clinic) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
}

type AssignmentRepository interface {
	Assign(ctx context.Context, a *Assignment) error
	Unassign(ctx context.Context, doctorID, clinicID uuid.UUID) error
	Exists(ctx context.Context, doctorID, clinicID uuid.UUID) (bool, error)
	ListClinics(ctx context.Context, doctorID uuid.UUID) ([]*Clinic, error)
}

type AppointmentTypeRepository interface {
	Create(ctx context.Context, t *AppointmentType) error
	GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	Update(ctx context.Context, t *AppointmentType) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AppointmentType, error)
}
