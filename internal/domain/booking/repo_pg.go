package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// SerialConstraint is the unique constraint over (doctor_id, serial_date, daily_serial).
const SerialConstraint = "bookings_doctor_serial_key"

var ErrBookingNotFound = apperr.NotFound(apperr.CodeBookingNotFound, "booking not found")

type repoPG struct{ pool db.Beginner }

func NewRepoPG(pool db.Beginner) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Beginner { return db.Conn(ctx, r.pool) }

const bookingCols = `id, doctor_id, clinic_id, patient_id, appointment_type_id, booking_status, book_via,
	daily_serial, serial_date, scheduled_at, cancel_note, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.DoctorID, &b.ClinicID, &b.PatientID, &b.AppointmentTypeID, &b.Status, &b.BookVia,
		&b.DailySerial, &b.SerialDate, &b.ScheduledAt, &b.CancelNote, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) Admit(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return db.RunInTx(ctx, r.conn(ctx), func(tx pgx.Tx) error {
		serial, err := AllocateSerial(ctx, tx, b.DoctorID, b.SerialDate)
		if err != nil {
			return err
		}
		b.DailySerial = serial
		return tx.QueryRow(ctx, `
			INSERT INTO bookings (id, doctor_id, clinic_id, patient_id, appointment_type_id, booking_status,
				book_via, daily_serial, serial_date, scheduled_at, cancel_note)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING created_at, updated_at`,
			b.ID, b.DoctorID, b.ClinicID, b.PatientID, b.AppointmentTypeID, string(b.Status),
			string(b.BookVia), b.DailySerial, b.SerialDate, b.ScheduledAt, b.CancelNote,
		).Scan(&b.CreatedAt, &b.UpdatedAt)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(b *Booking) error) (*Booking, error) {
	var out *Booking
	err := db.RunInTx(ctx, r.conn(ctx), func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			UPDATE bookings SET booking_status = $2, cancel_note = $3, scheduled_at = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			b.ID, string(b.Status), b.CancelNote, b.ScheduledAt).Scan(&b.UpdatedAt); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `DELETE FROM bookings WHERE id = $1 RETURNING `+bookingCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error) {
	where := ` WHERE doctor_id = $1 AND serial_date = $2`
	args := []interface{}{f.DoctorID, f.Date}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where += fmt.Sprintf(` AND booking_status = $%d`, len(args))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where += fmt.Sprintf(` AND patient_id = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + bookingCols + ` FROM bookings` + where +
		fmt.Sprintf(` ORDER BY daily_serial LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) query(ctx context.Context, query string, args ...interface{}) ([]*Booking, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *repoPG) ActiveQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Booking, error) {
	return r.query(ctx, `SELECT `+bookingCols+` FROM bookings
		WHERE doctor_id = $1 AND serial_date = $2 AND booking_status IN ('pending', 'confirmed')
		ORDER BY daily_serial`, doctorID, date)
}

func (r *repoPG) BookedSerials(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT daily_serial FROM bookings
		WHERE doctor_id = $1 AND clinic_id = $2 AND serial_date = $3
		ORDER BY daily_serial`, doctorID, clinicID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var serials []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}
