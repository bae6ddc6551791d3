package clinic

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

type Service struct {
	doctors      DoctorRepository
	clinics      ClinicRepository
	assignments  AssignmentRepository
	appointments AppointmentTypeRepository
}

func NewService(d DoctorRepository, c ClinicRepository, a AssignmentRepository, t AppointmentTypeRepository) *Service {
	return &Service{doctors: d, clinics: c, assignments: a, appointments: t}
}

// -- Doctor --

func validateDoctor(d *Doctor) error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Name) == "" {
		fields["name"] = "is required"
	}
	if d.YearsOfExperience < 0 {
		fields["yearsOfExperience"] = "must not be negative"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid doctor", fields)
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Clinic --

func validateClinic(c *Clinic) error {
	fields := map[string]string{}
	if strings.TrimSpace(c.Name) == "" {
		fields["name"] = "is required"
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		fields["latitude"] = "must be between -90 and 90"
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		fields["longitude"] = "must be between -180 and 180"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid clinic", fields)
	}
	return nil
}

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	if err := validateClinic(c); err != nil {
		return err
	}
	return s.clinics.Create(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) UpdateClinic(ctx context.Context, c *Clinic) error {
	if err := validateClinic(c); err != nil {
		return err
	}
	return s.clinics.Update(ctx, c)
}

func (s *Service) DeleteClinic(ctx context.Context, id uuid.UUID) error {
	return s.clinics.Delete(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

// -- Assignment --

// AssignDoctor links a doctor to a clinic. Both must exist.
func (s *Service) AssignDoctor(ctx context.Context, doctorID, clinicID uuid.UUID) (*Assignment, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	if _, err := s.clinics.GetByID(ctx, clinicID); err != nil {
		return nil, err
	}
	a := &Assignment{DoctorID: doctorID, ClinicID: clinicID}
	if err := s.assignments.Assign(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) UnassignDoctor(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	return s.assignments.Unassign(ctx, doctorID, clinicID)
}

// IsAssigned reports whether the doctor practises at the clinic.
func (s *Service) IsAssigned(ctx context.Context, doctorID, clinicID uuid.UUID) (bool, error) {
	return s.assignments.Exists(ctx, doctorID, clinicID)
}

func (s *Service) ListDoctorClinics(ctx context.Context, doctorID uuid.UUID) ([]*Clinic, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.assignments.ListClinics(ctx, doctorID)
}

// -- Appointment Type --

func validateAppointmentType(t *AppointmentType) error {
	fields := map[string]string{}
	if strings.TrimSpace(t.Name) == "" {
		fields["name"] = "is required"
	}
	if t.DurationMinutes <= 0 || t.DurationMinutes > 24*60 {
		fields["durationMinutes"] = "must be between 1 and 1440"
	}
	if !validAppointmentTypeStatuses[t.Status] {
		fields["status"] = "must be active or inactive"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid appointment type", fields)
	}
	return nil
}

func (s *Service) CreateAppointmentType(ctx context.Context, t *AppointmentType) error {
	if t.Status == "" {
		t.Status = AppointmentTypeActive
	}
	if err := validateAppointmentType(t); err != nil {
		return err
	}
	if _, err := s.doctors.GetByID(ctx, t.DoctorID); err != nil {
		return err
	}
	return s.appointments.Create(ctx, t)
}

func (s *Service) GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) UpdateAppointmentType(ctx context.Context, t *AppointmentType) error {
	if err := validateAppointmentType(t); err != nil {
		return err
	}
	return s.appointments.Update(ctx, t)
}

func (s *Service) ListAppointmentTypes(ctx context.Context, doctorID uuid.UUID) ([]*AppointmentType, error) {
	return s.appointments.ListByDoctor(ctx, doctorID)
}

// DoctorAppointmentType returns the appointment type only if it belongs to
// the doctor.
func (s *Service) DoctorAppointmentType(ctx context.Context, doctorID, typeID uuid.UUID) (*AppointmentType, error) {
	t, err := s.appointments.GetByID(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if t.DoctorID != doctorID {
		return nil, ErrAppointmentTypeNotFound
	}
	return t, nil
}
