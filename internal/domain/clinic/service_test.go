package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return ErrDoctorNotFound
	}
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(m.doctors, id)
	return nil
}

func (m *mockDoctorRepo) List(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		out = append(out, d)
	}
	return out, len(out), nil
}

type mockClinicRepo struct {
	clinics map[uuid.UUID]*Clinic
}

func newMockClinicRepo() *mockClinicRepo {
	return &mockClinicRepo{clinics: make(map[uuid.UUID]*Clinic)}
}

func (m *mockClinicRepo) Create(_ context.Context, c *Clinic) error {
	c.ID = uuid.New()
	m.clinics[c.ID] = c
	return nil
}

func (m *mockClinicRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return c, nil
}

func (m *mockClinicRepo) Update(_ context.Context, c *Clinic) error {
	if _, ok := m.clinics[c.ID]; !ok {
		return ErrClinicNotFound
	}
	m.clinics[c.ID] = c
	return nil
}

func (m *mockClinicRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.clinics, id)
	return nil
}

func (m *mockClinicRepo) List(_ context.Context, limit, offset int) ([]*Clinic, int, error) {
	var out []*Clinic
	for _, c := range m.clinics {
		out = append(out, c)
	}
	return out, len(out), nil
}

type assignmentKey struct{ doctor, clinic uuid.UUID }

type mockAssignmentRepo struct {
	links   map[assignmentKey]bool
	clinics *mockClinicRepo
}

func newMockAssignmentRepo(clinics *mockClinicRepo) *mockAssignmentRepo {
	return &mockAssignmentRepo{links: make(map[assignmentKey]bool), clinics: clinics}
}

func (m *mockAssignmentRepo) Assign(_ context.Context, a *Assignment) error {
	k := assignmentKey{a.DoctorID, a.ClinicID}
	if m.links[k] {
		return ErrAlreadyAssigned
	}
	m.links[k] = true
	a.CreatedAt = time.Now()
	return nil
}

func (m *mockAssignmentRepo) Unassign(_ context.Context, doctorID, clinicID uuid.UUID) error {
	k := assignmentKey{doctorID, clinicID}
	if !m.links[k] {
		return ErrAssignmentNotFound
	}
	delete(m.links, k)
	return nil
}

func (m *mockAssignmentRepo) Exists(_ context.Context, doctorID, clinicID uuid.UUID) (bool, error) {
	return m.links[assignmentKey{doctorID, clinicID}], nil
}

func (m *mockAssignmentRepo) ListClinics(_ context.Context, doctorID uuid.UUID) ([]*Clinic, error) {
	var out []*Clinic
	for k := range m.links {
		if k.doctor == doctorID {
			out = append(out, m.clinics.clinics[k.clinic])
		}
	}
	return out, nil
}

type mockAppointmentTypeRepo struct {
	types map[uuid.UUID]*AppointmentType
}

func newMockAppointmentTypeRepo() *mockAppointmentTypeRepo {
	return &mockAppointmentTypeRepo{types: make(map[uuid.UUID]*AppointmentType)}
}

func (m *mockAppointmentTypeRepo) Create(_ context.Context, t *AppointmentType) error {
	t.ID = uuid.New()
	m.types[t.ID] = t
	return nil
}

func (m *mockAppointmentTypeRepo) GetByID(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, ok := m.types[id]
	if !ok {
		return nil, ErrAppointmentTypeNotFound
	}
	return t, nil
}

func (m *mockAppointmentTypeRepo) Update(_ context.Context, t *AppointmentType) error {
	old, ok := m.types[t.ID]
	if !ok {
		return ErrAppointmentTypeNotFound
	}
	t.DoctorID = old.DoctorID
	m.types[t.ID] = t
	return nil
}

func (m *mockAppointmentTypeRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*AppointmentType, error) {
	var out []*AppointmentType
	for _, t := range m.types {
		if t.DoctorID == doctorID {
			out = append(out, t)
		}
	}
	return out, nil
}

func newTestService() *Service {
	clinics := newMockClinicRepo()
	return NewService(newMockDoctorRepo(), clinics, newMockAssignmentRepo(clinics), newMockAppointmentTypeRepo())
}

// -- Doctor Tests --

func TestService_CreateDoctor(t *testing.T) {
	svc := newTestService()
	d := &Doctor{Name: "Dr. Rahman", YearsOfExperience: 12}
	require.NoError(t, svc.CreateDoctor(context.Background(), d))
	assert.NotEqual(t, uuid.Nil, d.ID)

	got, err := svc.GetDoctor(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rahman", got.Name)
}

func TestService_CreateDoctor_Invalid(t *testing.T) {
	svc := newTestService()
	err := svc.CreateDoctor(context.Background(), &Doctor{Name: "  ", YearsOfExperience: -1})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "name")
	assert.Contains(t, ae.Fields, "yearsOfExperience")
}

func TestService_GetDoctor_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetDoctor(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrDoctorNotFound))
	assert.True(t, apperr.HasCode(err, apperr.CodeDoctorNotFound))
}

// -- Clinic Tests --

func TestService_CreateClinic_CoordinateBounds(t *testing.T) {
	svc := newTestService()
	lat, lon := 91.0, 10.0
	err := svc.CreateClinic(context.Background(), &Clinic{Name: "North", Latitude: &lat, Longitude: &lon})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, ae.Fields, "latitude")

	lat = 23.8
	require.NoError(t, svc.CreateClinic(context.Background(), &Clinic{Name: "North", Latitude: &lat, Longitude: &lon}))
}

// -- Assignment Tests --

func TestService_AssignDoctor(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	d := &Doctor{Name: "Dr. A"}
	c := &Clinic{Name: "Central"}
	require.NoError(t, svc.CreateDoctor(ctx, d))
	require.NoError(t, svc.CreateClinic(ctx, c))

	ok, err := svc.IsAssigned(ctx, d.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.AssignDoctor(ctx, d.ID, c.ID)
	require.NoError(t, err)

	ok, err = svc.IsAssigned(ctx, d.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.AssignDoctor(ctx, d.ID, c.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyAssigned))

	clinics, err := svc.ListDoctorClinics(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, clinics, 1)

	require.NoError(t, svc.UnassignDoctor(ctx, d.ID, c.ID))
	ok, _ = svc.IsAssigned(ctx, d.ID, c.ID)
	assert.False(t, ok)
}

func TestService_AssignDoctor_UnknownClinic(t *testing.T) {
	svc := newTestService()
	d := &Doctor{Name: "Dr. A"}
	require.NoError(t, svc.CreateDoctor(context.Background(), d))

	_, err := svc.AssignDoctor(context.Background(), d.ID, uuid.New())
	assert.True(t, apperr.HasCode(err, apperr.CodeClinicNotFound))
}

// -- Appointment Type Tests --

func TestService_CreateAppointmentType(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	d := &Doctor{Name: "Dr. A"}
	require.NoError(t, svc.CreateDoctor(ctx, d))

	at := &AppointmentType{DoctorID: d.ID, Name: "Follow-up", DurationMinutes: 10}
	require.NoError(t, svc.CreateAppointmentType(ctx, at))
	assert.Equal(t, AppointmentTypeActive, at.Status)

	got, err := svc.DoctorAppointmentType(ctx, d.ID, at.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.DurationMinutes)

	_, err = svc.DoctorAppointmentType(ctx, uuid.New(), at.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeAppointmentTypeNotFound))
}

func TestService_CreateAppointmentType_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name  string
		at    AppointmentType
		field string
	}{
		{"missing name", AppointmentType{DurationMinutes: 15}, "name"},
		{"zero duration", AppointmentType{Name: "Consult"}, "durationMinutes"},
		{"too long", AppointmentType{Name: "Consult", DurationMinutes: 1441}, "durationMinutes"},
		{"bad status", AppointmentType{Name: "Consult", DurationMinutes: 15, Status: "archived"}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			at.DoctorID = uuid.New()
			err := svc.CreateAppointmentType(context.Background(), &at)
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Contains(t, ae.Fields, tt.field)
		})
	}
}

func TestService_CreateAppointmentType_UnknownDoctor(t *testing.T) {
	svc := newTestService()
	err := svc.CreateAppointmentType(context.Background(), &AppointmentType{DoctorID: uuid.New(), Name: "Consult", DurationMinutes: 15})
	assert.True(t, apperr.HasCode(err, apperr.CodeDoctorNotFound))
}
