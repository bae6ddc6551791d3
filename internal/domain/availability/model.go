package availability

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/validate"
)

type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// specificity orders recurrences when several rules match one date.
func (r Recurrence) specificity() int {
	switch r {
	case RecurrenceWeekly:
		return 3
	case RecurrenceMonthly:
		return 2
	case RecurrenceDaily:
		return 1
	}
	return 0
}

// Break is a half-open [Start, End) interval in minutes since midnight.
type Break struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (b Break) Contains(minute int) bool {
	return minute >= b.Start && minute < b.End
}

// Rule maps to the availability_rules table.
type Rule struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctorId"`
	ClinicID    uuid.UUID  `db:"clinic_id" json:"clinicId"`
	Recurrence  Recurrence `db:"recurrence" json:"recurrence"`
	DayOfWeek   *int       `db:"day_of_week" json:"dayOfWeek,omitempty"`
	DayOfMonth  *int       `db:"day_of_month" json:"dayOfMonth,omitempty"`
	StartMinute int        `db:"start_minute" json:"-"`
	EndMinute   int        `db:"end_minute" json:"-"`
	Breaks      []Break    `db:"breaks" json:"-"`
	IsActive    bool       `db:"is_active" json:"isActive"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// Matches reports whether the rule applies to date.
func (r *Rule) Matches(date time.Time) bool {
	if !r.IsActive {
		return false
	}
	switch r.Recurrence {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		return r.DayOfWeek != nil && int(date.Weekday()) == *r.DayOfWeek
	case RecurrenceMonthly:
		return r.DayOfMonth != nil && date.Day() == *r.DayOfMonth
	}
	return false
}

type clockBreak struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON renders minute fields as "HH:MM".
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	breaks := make([]clockBreak, len(r.Breaks))
	for i, b := range r.Breaks {
		breaks[i] = clockBreak{Start: validate.FormatClock(b.Start), End: validate.FormatClock(b.End)}
	}
	return json.Marshal(struct {
		plain
		StartTime string       `json:"startTime"`
		EndTime   string       `json:"endTime"`
		Breaks    []clockBreak `json:"breaks"`
	}{
		plain:     plain(r),
		StartTime: validate.FormatClock(r.StartMinute),
		EndTime:   validate.FormatClock(r.EndMinute),
		Breaks:    breaks,
	})
}

// TimeSlot is one bookable step of a rule's window.
type TimeSlot struct {
	StartMinute int
	EndMinute   int
	Available   bool
	Serial      int
}

func (s TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start     string `json:"start"`
		End       string `json:"end"`
		Available bool   `json:"available"`
		Serial    int    `json:"serial"`
	}{
		Start:     validate.FormatClock(s.StartMinute),
		End:       validate.FormatClock(s.EndMinute),
		Available: s.Available,
		Serial:    s.Serial,
	})
}

// DaySlots is the slot grid for one date.
type DaySlots struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}
