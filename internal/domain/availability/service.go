package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/domain/clinic"
	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/validate"
)

const (
	DefaultSlotMinutes = 15
	DefaultMaxDays     = 30
	maxScanDays        = 366
)

var ErrRuleExists = apperr.Conflict(apperr.CodeRuleExists, "an active weekly rule already exists for that day")

// Directory is the reference data the resolver consults.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
	IsAssigned(ctx context.Context, doctorID, clinicID uuid.UUID) (bool, error)
	DoctorAppointmentType(ctx context.Context, doctorID, typeID uuid.UUID) (*clinic.AppointmentType, error)
}

// SerialSource reports the daily serials already taken at a clinic on a date.
type SerialSource interface {
	BookedSerials(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]int, error)
}

type Service struct {
	rules       RuleRepository
	directory   Directory
	serials     SerialSource
	slotMinutes int
	maxDays     int
}

func NewService(rules RuleRepository, dir Directory, serials SerialSource, slotMinutes, maxDays int) *Service {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	return &Service{rules: rules, directory: dir, serials: serials, slotMinutes: slotMinutes, maxDays: maxDays}
}

// -- Rules --

// CreateRule validates and stores a new active rule. A second active weekly
// rule for the same doctor, clinic and weekday is rejected.
func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if fields := validateWindow(r); len(fields) > 0 {
		return apperr.Validation("invalid availability rule", fields)
	}
	if r.Recurrence != RecurrenceWeekly {
		r.DayOfWeek = nil
	}
	if r.Recurrence != RecurrenceMonthly {
		r.DayOfMonth = nil
	}
	if _, err := s.directory.GetDoctor(ctx, r.DoctorID); err != nil {
		return apperr.FromStore(err)
	}
	assigned, err := s.directory.IsAssigned(ctx, r.DoctorID, r.ClinicID)
	if err != nil {
		return apperr.FromStore(err)
	}
	if !assigned {
		return apperr.Conflict(apperr.CodeDoctorNotInClinic, "doctor is not assigned to this clinic")
	}
	if r.Recurrence == RecurrenceWeekly {
		exists, err := s.rules.ActiveWeeklyExists(ctx, r.DoctorID, r.ClinicID, *r.DayOfWeek)
		if err != nil {
			return apperr.FromStore(err)
		}
		if exists {
			return ErrRuleExists
		}
	}
	return apperr.FromStore(s.rules.Create(ctx, r))
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	r, err := s.rules.GetByID(ctx, id)
	return r, apperr.FromStore(err)
}

func (s *Service) ListRules(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]*Rule, error) {
	rules, err := s.rules.ListByDoctor(ctx, doctorID, includeInactive)
	return rules, apperr.FromStore(err)
}

// DeactivateRule retires a rule. Rules are never physically deleted.
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	return apperr.FromStore(s.rules.Deactivate(ctx, id))
}

// -- Resolution --

// ResolveRule returns the active rule in force for the doctor at the clinic on
// date, or ErrNoAvailability.
func (s *Service) ResolveRule(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) (*Rule, error) {
	rules, err := s.rules.ListActive(ctx, doctorID, clinicID)
	if err != nil {
		return nil, apperr.FromStore(fmt.Errorf("load availability rules: %w", err))
	}
	rule := SelectRule(rules, date)
	if rule == nil {
		return nil, ErrNoAvailability
	}
	return rule, nil
}

// SlotMinutes returns the slot length: the appointment type's duration when
// one is given, the configured default otherwise.
func (s *Service) SlotMinutes(ctx context.Context, doctorID uuid.UUID, appointmentTypeID *uuid.UUID) (int, error) {
	if appointmentTypeID == nil {
		return s.slotMinutes, nil
	}
	t, err := s.directory.DoctorAppointmentType(ctx, doctorID, *appointmentTypeID)
	if err != nil {
		return 0, apperr.FromStore(err)
	}
	if t.DurationMinutes <= 0 {
		return s.slotMinutes, nil
	}
	return t.DurationMinutes, nil
}

// Slots computes the slot grid for one date. A date without a matching rule
// yields an empty grid.
func (s *Service) Slots(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time, appointmentTypeID *uuid.UUID) (*DaySlots, error) {
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, apperr.FromStore(err)
	}
	minutes, err := s.SlotMinutes(ctx, doctorID, appointmentTypeID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActive(ctx, doctorID, clinicID)
	if err != nil {
		return nil, apperr.FromStore(fmt.Errorf("load availability rules: %w", err))
	}
	return s.daySlots(ctx, rules, doctorID, clinicID, date, minutes)
}

func (s *Service) daySlots(ctx context.Context, rules []*Rule, doctorID, clinicID uuid.UUID, date time.Time, minutes int) (*DaySlots, error) {
	out := &DaySlots{Date: date.Format(validate.DateLayout), Slots: []TimeSlot{}}
	rule := SelectRule(rules, date)
	if rule == nil {
		return out, nil
	}
	booked, err := s.serials.BookedSerials(ctx, doctorID, clinicID, date)
	if err != nil {
		return nil, apperr.FromStore(fmt.Errorf("load booked serials: %w", err))
	}
	if slots := ComputeSlots(rule, booked, minutes); slots != nil {
		out.Slots = slots
	}
	return out, nil
}

// NextAvailableDate scans from, from+1, ... for maxDays days and returns the
// first date with at least one open slot. It fails closed with
// ErrNoAvailableDate when the window is exhausted.
func (s *Service) NextAvailableDate(ctx context.Context, doctorID, clinicID uuid.UUID, from time.Time, maxDays int, appointmentTypeID *uuid.UUID) (*DaySlots, error) {
	if maxDays <= 0 {
		maxDays = s.maxDays
	}
	if maxDays > maxScanDays {
		maxDays = maxScanDays
	}
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, apperr.FromStore(err)
	}
	minutes, err := s.SlotMinutes(ctx, doctorID, appointmentTypeID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActive(ctx, doctorID, clinicID)
	if err != nil {
		return nil, apperr.FromStore(fmt.Errorf("load availability rules: %w", err))
	}

	for i := 0; i < maxDays; i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.FromStore(err)
		}
		date := from.AddDate(0, 0, i)
		day, err := s.daySlots(ctx, rules, doctorID, clinicID, date, minutes)
		if err != nil {
			return nil, err
		}
		for _, slot := range day.Slots {
			if slot.Available {
				return day, nil
			}
		}
	}
	return nil, ErrNoAvailableDate
}
