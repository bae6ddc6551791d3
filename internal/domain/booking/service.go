package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/availability"
	"github.com/clinicq/clinicq/internal/domain/clinic"
	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/metrics"
	"github.com/clinicq/clinicq/internal/platform/queuehub"
)

var ErrDuplicateSerial = apperr.Conflict(apperr.CodeDuplicateSerial, "could not allocate a unique serial, retry the request")

// Directory is the reference data admission consults.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
	IsAssigned(ctx context.Context, doctorID, clinicID uuid.UUID) (bool, error)
	DoctorAppointmentType(ctx context.Context, doctorID, typeID uuid.UUID) (*clinic.AppointmentType, error)
}

// Schedule resolves the availability rule in force for a day.
type Schedule interface {
	ResolveRule(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) (*availability.Rule, error)
	SlotMinutes(ctx context.Context, doctorID uuid.UUID, appointmentTypeID *uuid.UUID) (int, error)
}

type Service struct {
	repo      Repository
	directory Directory
	schedule  Schedule
	outbox    *queuehub.Outbox
	metrics   *metrics.BookingMetrics
	logger    zerolog.Logger
}

// NewService publishes through pub, wrapped in an Outbox unless it already is
// one. A nil pub disables events.
func NewService(repo Repository, dir Directory, sched Schedule, pub queuehub.Publisher, m *metrics.BookingMetrics, logger zerolog.Logger) *Service {
	s := &Service{
		repo:      repo,
		directory: dir,
		schedule:  sched,
		metrics:   m,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
	switch p := pub.(type) {
	case nil:
	case *queuehub.Outbox:
		s.outbox = p
	default:
		s.outbox = queuehub.NewOutbox(p, queuehub.DefaultOutboxSize, logger, nil)
	}
	return s
}

// Close flushes queued events.
func (s *Service) Close(ctx context.Context) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Close(ctx)
}

// CreateBooking admits a booking: the doctor must be assigned to the clinic
// and have availability on the serial date. The serial is allocated and the
// row inserted in one transaction; booking_created is published after commit.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	if req.BookVia == "" {
		req.BookVia = BookViaWeb
	}
	if !req.BookVia.Valid() {
		return nil, apperr.Validation("invalid bookVia", map[string]string{"bookVia": "must be one of: web app walk_in"})
	}
	req.SerialDate = dateOnly(req.SerialDate)

	if _, err := s.directory.GetDoctor(ctx, req.DoctorID); err != nil {
		return nil, apperr.FromStore(err)
	}
	assigned, err := s.directory.IsAssigned(ctx, req.DoctorID, req.ClinicID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if !assigned {
		return nil, apperr.Conflict(apperr.CodeDoctorNotInClinic, "doctor is not assigned to this clinic")
	}
	rule, err := s.schedule.ResolveRule(ctx, req.DoctorID, req.ClinicID, req.SerialDate)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if req.ScheduledAt != nil {
		if err := checkScheduledAt(rule, req.SerialDate, *req.ScheduledAt); err != nil {
			return nil, err
		}
	}
	if req.AppointmentTypeID != nil {
		if _, err := s.directory.DoctorAppointmentType(ctx, req.DoctorID, *req.AppointmentTypeID); err != nil {
			return nil, apperr.FromStore(err)
		}
	}

	b := &Booking{
		ID:                uuid.New(),
		DoctorID:          req.DoctorID,
		ClinicID:          req.ClinicID,
		PatientID:         req.PatientID,
		AppointmentTypeID: req.AppointmentTypeID,
		Status:            StatusPending,
		BookVia:           req.BookVia,
		SerialDate:        req.SerialDate,
		ScheduledAt:       req.ScheduledAt,
	}
	if err := s.admit(ctx, b); err != nil {
		return nil, err
	}
	s.metrics.ObserveCreate("ok")

	s.publish(ctx, bookingEvent(ctx, queuehub.EventBookingCreated, b))
	return b, nil
}

// admit runs the allocate+insert transaction, retrying it once when another
// transaction won the same serial.
func (s *Service) admit(ctx context.Context, b *Booking) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := s.repo.Admit(ctx, b)
		s.metrics.ObserveAdmissionTx(time.Since(start))
		if err == nil {
			return nil
		}
		if !apperr.IsUniqueViolation(err, SerialConstraint) {
			s.metrics.ObserveCreate("error")
			return apperr.FromStore(fmt.Errorf("admit booking: %w", err))
		}
		if attempt > 0 {
			s.metrics.ObserveCreate("conflict")
			return ErrDuplicateSerial
		}
		s.metrics.ObserveSerialRetry()
		s.logger.Warn().
			Str("doctor_id", b.DoctorID.String()).
			Str("serial_date", b.Date()).
			Msg("serial conflict, retrying admission")
	}
}

// checkScheduledAt requires at to fall on date and inside the rule's open
// hours. The time of day is read in at's own offset.
func checkScheduledAt(rule *availability.Rule, date, at time.Time) error {
	if !dateOnly(at).Equal(date) {
		return apperr.Validation("scheduledAt must fall on serialDate",
			map[string]string{"scheduledAt": "must fall on serialDate"})
	}
	return availability.ContainsTime(rule, at.Hour()*60+at.Minute())
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, f ListFilter, limit, offset int) ([]*Booking, int, error) {
	f.Date = dateOnly(f.Date)
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore(err)
	}
	return items, total, nil
}

// UpdateBooking applies a patch under the booking's row lock. Status changes
// follow the lifecycle table; cancelling requires a note.
func (s *Service) UpdateBooking(ctx context.Context, id uuid.UUID, p Patch) (*Booking, error) {
	if p.empty() {
		return nil, apperr.Validation("no changes requested", nil)
	}

	var rule *availability.Rule
	if p.ScheduledAt != nil {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		rule, err = s.schedule.ResolveRule(ctx, current.DoctorID, current.ClinicID, current.SerialDate)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
	}

	var from Status
	updated, err := s.repo.UpdateLocked(ctx, id, func(b *Booking) error {
		from = b.Status
		if p.Status != nil {
			if err := AssertValidTransition(b.Status, *p.Status); err != nil {
				return err
			}
			if *p.Status == StatusCancelled {
				if p.CancelNote == nil || strings.TrimSpace(*p.CancelNote) == "" {
					return apperr.Validation("cancelNote is required when cancelling a booking",
						map[string]string{"cancelNote": "is required"})
				}
			}
			b.Status = *p.Status
		} else if b.Status.Terminal() {
			return apperr.Conflict(apperr.CodeInvalidTransition,
				fmt.Sprintf("booking is %s and can no longer change", b.Status))
		}
		if p.CancelNote != nil {
			note := strings.TrimSpace(*p.CancelNote)
			b.CancelNote = &note
		}
		if p.ScheduledAt != nil {
			if err := checkScheduledAt(rule, b.SerialDate, *p.ScheduledAt); err != nil {
				return err
			}
			b.ScheduledAt = p.ScheduledAt
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}

	typ := queuehub.EventBookingUpdated
	if p.Status != nil {
		s.metrics.ObserveTransition(string(from), string(updated.Status))
		if updated.Status == StatusCancelled {
			typ = queuehub.EventBookingCancelled
		}
	}
	s.publish(ctx, bookingEvent(ctx, typ, updated))
	if p.Status != nil && updated.Status.Terminal() {
		s.publishPositions(ctx, updated.DoctorID, updated.SerialDate)
	}
	return updated, nil
}

// DeleteBooking physically removes a booking, bypassing the lifecycle. The
// serial it held is never reissued.
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	b, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperr.FromStore(err)
	}
	s.publish(ctx, bookingEvent(ctx, queuehub.EventBookingCancelled, b))
	if b.Status.Active() {
		s.publishPositions(ctx, b.DoctorID, b.SerialDate)
	}
	return nil
}

// QueuePosition ranks the booking among the day's active bookings. Position
// and wait are nil once the booking has left the queue.
func (s *Service) QueuePosition(ctx context.Context, id uuid.UUID) (*Position, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	pos := &Position{BookingID: b.ID, DoctorID: b.DoctorID, PatientID: b.PatientID, Date: b.Date(), Serial: b.DailySerial, Status: b.Status}
	if !b.Status.Active() {
		return pos, nil
	}
	positions, err := s.positions(ctx, b.DoctorID, b.SerialDate)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.BookingID == b.ID {
			return p, nil
		}
	}
	return pos, nil
}

func (s *Service) positions(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Position, error) {
	queue, err := s.repo.ActiveQueue(ctx, doctorID, date)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	minutes, err := s.schedule.SlotMinutes(ctx, doctorID, nil)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	out := make([]*Position, 0, len(queue))
	for i, q := range queue {
		rank := i + 1
		wait := i * minutes
		out = append(out, &Position{
			BookingID:            q.ID,
			DoctorID:             q.DoctorID,
			PatientID:            q.PatientID,
			Date:                 q.Date(),
			Serial:               q.DailySerial,
			Status:               q.Status,
			Position:             &rank,
			EstimatedWaitMinutes: &wait,
		})
	}
	return out, nil
}

// publishPositions tells every booking still queued for the day where it now
// stands. Failures are logged only.
func (s *Service) publishPositions(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if s.outbox == nil {
		return
	}
	positions, err := s.positions(ctx, doctorID, date)
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("queue positions not computed")
		return
	}
	org := db.OrganizationFromContext(ctx)
	events := make([]queuehub.Event, 0, len(positions))
	for _, p := range positions {
		serial := p.Serial
		events = append(events, queuehub.Event{
			Type:                 queuehub.EventQueuePosition,
			OrganizationID:       org,
			BookingID:            p.BookingID.String(),
			DoctorID:             p.DoctorID,
			PatientID:            p.PatientID.String(),
			Date:                 p.Date,
			Serial:               &serial,
			Status:               string(p.Status),
			Position:             p.Position,
			EstimatedWaitMinutes: p.EstimatedWaitMinutes,
		})
	}
	s.publish(ctx, events...)
}

// publish is best-effort and runs after the transaction has committed. It only
// enqueues; delivery happens on the outbox goroutine.
func (s *Service) publish(ctx context.Context, events ...queuehub.Event) {
	if s.outbox == nil {
		return
	}
	for _, e := range events {
		if err := s.outbox.Publish(ctx, e); err != nil {
			s.logger.Warn().Err(err).
				Str("event", string(e.Type)).
				Str("booking_id", e.BookingID).
				Msg("queue event not delivered")
		}
	}
}

func bookingEvent(ctx context.Context, typ queuehub.EventType, b *Booking) queuehub.Event {
	serial := b.DailySerial
	return queuehub.Event{
		Type:           typ,
		OrganizationID: db.OrganizationFromContext(ctx),
		BookingID:      b.ID.String(),
		DoctorID:       b.DoctorID,
		PatientID:      b.PatientID.String(),
		Date:           b.Date(),
		Serial:         &serial,
		Status:         string(b.Status),
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
