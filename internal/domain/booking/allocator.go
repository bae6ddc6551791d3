package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	ensureCounterSQL = `INSERT INTO booking_serial_counters (doctor_id, serial_date, last_serial)
		VALUES ($1, $2, 0)
		ON CONFLICT (doctor_id, serial_date) DO NOTHING`

	lockCounterSQL = `SELECT last_serial FROM booking_serial_counters
		WHERE doctor_id = $1 AND serial_date = $2
		FOR UPDATE`

	maxSerialSQL = `SELECT COALESCE(MAX(daily_serial), 0) FROM bookings
		WHERE doctor_id = $1 AND serial_date = $2`

	advanceCounterSQL = `UPDATE booking_serial_counters SET last_serial = $3
		WHERE doctor_id = $1 AND serial_date = $2`
)

// AllocateSerial returns the next daily serial for the doctor on date. It
// must run inside tx: the counter row stays locked until tx commits or rolls
// back, so concurrent allocators for the same doctor and date queue behind
// it. The result is max(existing serials, last issued) + 1, so a serial is
// never handed out twice even after the highest booking is deleted.
func AllocateSerial(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date time.Time) (int, error) {
	if _, err := tx.Exec(ctx, ensureCounterSQL, doctorID, date); err != nil {
		return 0, fmt.Errorf("ensure serial counter: %w", err)
	}

	var last int
	if err := tx.QueryRow(ctx, lockCounterSQL, doctorID, date).Scan(&last); err != nil {
		return 0, fmt.Errorf("lock serial counter: %w", err)
	}

	var maxSerial int
	if err := tx.QueryRow(ctx, maxSerialSQL, doctorID, date).Scan(&maxSerial); err != nil {
		return 0, fmt.Errorf("read max serial: %w", err)
	}

	next := last
	if maxSerial > next {
		next = maxSerial
	}
	next++

	if _, err := tx.Exec(ctx, advanceCounterSQL, doctorID, date, next); err != nil {
		return 0, fmt.Errorf("advance serial counter: %w", err)
	}
	return next, nil
}
