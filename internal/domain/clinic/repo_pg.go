package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
)

var (
	ErrDoctorNotFound          = apperr.NotFound(apperr.CodeDoctorNotFound, "doctor not found")
	ErrClinicNotFound          = apperr.NotFound(apperr.CodeClinicNotFound, "clinic not found")
	ErrAppointmentTypeNotFound = apperr.NotFound(apperr.CodeAppointmentTypeNotFound, "appointment type not found")
	ErrAssignmentNotFound      = apperr.NotFound(apperr.CodeNotFound, "doctor is not assigned to clinic")
	ErrAlreadyAssigned         = apperr.Conflict(apperr.CodeAlreadyAssigned, "doctor is already assigned to clinic")
)

// notFound translates pgx.ErrNoRows into the domain error.
func notFound(err error, nf error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nf
	}
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool db.Beginner }

func NewDoctorRepoPG(pool db.Beginner) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, name, specialty, years_of_experience, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.YearsOfExperience, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, years_of_experience)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialty, d.YearsOfExperience).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET name = $2, specialty = $3, years_of_experience = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Specialty, d.YearsOfExperience).Scan(&d.CreatedAt, &d.UpdatedAt)
	return notFound(err, ErrDoctorNotFound)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Clinic Repository ===========

type clinicRepoPG struct{ pool db.Beginner }

func NewClinicRepoPG(pool db.Beginner) ClinicRepository { return &clinicRepoPG{pool: pool} }

func (r *clinicRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const clinicCols = `id, name, address, latitude, longitude, created_at, updated_at`

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinics (id, name, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Address, c.Latitude, c.Longitude).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := scanClinic(r.conn(ctx).QueryRow(ctx, `SELECT `+clinicCols+` FROM clinics WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrClinicNotFound)
	}
	return c, nil
}

func (r *clinicRepoPG) Update(ctx context.Context, c *Clinic) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinics SET name = $2, address = $3, latitude = $4, longitude = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Address, c.Latitude, c.Longitude).Scan(&c.CreatedAt, &c.UpdatedAt)
	return notFound(err, ErrClinicNotFound)
}

func (r *clinicRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

func (r *clinicRepoPG) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinics`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+clinicCols+` FROM clinics ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Assignment Repository ===========

type assignmentRepoPG struct{ pool db.Beginner }

func NewAssignmentRepoPG(pool db.Beginner) AssignmentRepository { return &assignmentRepoPG{pool: pool} }

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *assignmentRepoPG) Assign(ctx context.Context, a *Assignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_clinics (doctor_id, clinic_id) VALUES ($1, $2)
		RETURNING created_at`,
		a.DoctorID, a.ClinicID).Scan(&a.CreatedAt)
	if apperr.IsUniqueViolation(err, "doctor_clinics_pkey") {
		return ErrAlreadyAssigned
	}
	return err
}

func (r *assignmentRepoPG) Unassign(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_clinics WHERE doctor_id = $1 AND clinic_id = $2`, doctorID, clinicID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *assignmentRepoPG) Exists(ctx context.Context, doctorID, clinicID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor_clinics WHERE doctor_id = $1 AND clinic_id = $2)`,
		doctorID, clinicID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return ok, nil
}

func (r *assignmentRepoPG) ListClinics(ctx context.Context, doctorID uuid.UUID) ([]*Clinic, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.name, c.address, c.latitude, c.longitude, c.created_at, c.updated_at
		FROM clinics c JOIN doctor_clinics dc ON dc.clinic_id = c.id
		WHERE dc.doctor_id = $1
		ORDER BY c.name, c.id`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Appointment Type Repository ===========

type appointmentTypeRepoPG struct{ pool db.Beginner }

func NewAppointmentTypeRepoPG(pool db.Beginner) AppointmentTypeRepository {
	return &appointmentTypeRepoPG{pool: pool}
}

func (r *appointmentTypeRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptTypeCols = `id, doctor_id, name, status, duration_minutes, created_at, updated_at`

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(&t.ID, &t.DoctorID, &t.Name, &t.Status, &t.DurationMinutes, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *appointmentTypeRepoPG) Create(ctx context.Context, t *AppointmentType) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_types (id, doctor_id, name, status, duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		t.ID, t.DoctorID, t.Name, t.Status, t.DurationMinutes).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *appointmentTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, err := scanAppointmentType(r.conn(ctx).QueryRow(ctx, `SELECT `+apptTypeCols+` FROM appointment_types WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrAppointmentTypeNotFound)
	}
	return t, nil
}

func (r *appointmentTypeRepoPG) Update(ctx context.Context, t *AppointmentType) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_types SET name = $2, status = $3, duration_minutes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING doctor_id, created_at, updated_at`,
		t.ID, t.Name, t.Status, t.DurationMinutes).Scan(&t.DoctorID, &t.CreatedAt, &t.UpdatedAt)
	return notFound(err, ErrAppointmentTypeNotFound)
}

func (r *appointmentTypeRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AppointmentType, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptTypeCols+` FROM appointment_types WHERE doctor_id = $1 ORDER BY name, id`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AppointmentType
	for rows.Next() {
		t, err := scanAppointmentType(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
