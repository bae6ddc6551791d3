package availability

import (
	"sort"
	"time"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

var (
	ErrNoAvailability  = apperr.Conflict(apperr.CodeNoAvailability, "doctor has no availability at this clinic on that date")
	ErrNoAvailableDate = apperr.NotFound(apperr.CodeNoAvailableDate, "no available date within the search window")
	ErrOutsideHours    = apperr.Conflict(apperr.CodeOutsideHours, "scheduled time is outside the doctor's hours")
	ErrDuringBreak     = apperr.Conflict(apperr.CodeDuringBreak, "scheduled time falls inside a break")
)

// SelectRule picks the rule in force on date from a doctor's active rules at
// one clinic. The most specific recurrence wins (weekly, then monthly, then
// daily); among equals the most recently updated rule wins. Returns nil when
// no rule matches.
func SelectRule(rules []*Rule, date time.Time) *Rule {
	var best *Rule
	for _, r := range rules {
		if !r.Matches(date) {
			continue
		}
		if best == nil || outranks(r, best) {
			best = r
		}
	}
	return best
}

func outranks(a, b *Rule) bool {
	if sa, sb := a.Recurrence.specificity(), b.Recurrence.specificity(); sa != sb {
		return sa > sb
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// ComputeSlots walks [StartMinute, EndMinute) in slotMinutes steps. Steps
// starting inside a break are skipped and take no serial; emitted slots are
// numbered from 1. A slot is unavailable when its serial is already booked.
func ComputeSlots(rule *Rule, booked []int, slotMinutes int) []TimeSlot {
	if rule == nil || slotMinutes <= 0 {
		return nil
	}
	taken := make(map[int]bool, len(booked))
	for _, s := range booked {
		taken[s] = true
	}

	var slots []TimeSlot
	serial := 0
	for start := rule.StartMinute; start < rule.EndMinute; start += slotMinutes {
		if inBreak(rule.Breaks, start) {
			continue
		}
		serial++
		end := start + slotMinutes
		if end > rule.EndMinute {
			end = rule.EndMinute
		}
		slots = append(slots, TimeSlot{
			StartMinute: start,
			EndMinute:   end,
			Serial:      serial,
			Available:   !taken[serial],
		})
	}
	return slots
}

func inBreak(breaks []Break, minute int) bool {
	for _, b := range breaks {
		if b.Contains(minute) {
			return true
		}
	}
	return false
}

// ContainsTime checks that minuteOfDay is inside the rule's window and not
// inside any break.
func ContainsTime(rule *Rule, minuteOfDay int) error {
	if minuteOfDay < rule.StartMinute || minuteOfDay >= rule.EndMinute {
		return ErrOutsideHours
	}
	if inBreak(rule.Breaks, minuteOfDay) {
		return ErrDuringBreak
	}
	return nil
}

// validateWindow checks a rule's minute range and breaks. Breaks must lie in
// the window, be non-empty and must not overlap; they are sorted in place.
func validateWindow(r *Rule) map[string]string {
	fields := map[string]string{}
	if r.StartMinute < 0 || r.StartMinute >= 24*60 {
		fields["startTime"] = "must be between 00:00 and 23:59"
	}
	if r.EndMinute <= r.StartMinute || r.EndMinute > 24*60 {
		fields["endTime"] = "must be after startTime and no later than 24:00"
	}
	sort.Slice(r.Breaks, func(i, j int) bool { return r.Breaks[i].Start < r.Breaks[j].Start })
	for i, b := range r.Breaks {
		switch {
		case b.End <= b.Start:
			fields["breaks"] = "each break must end after it starts"
		case b.Start < r.StartMinute || b.End > r.EndMinute:
			fields["breaks"] = "breaks must lie within the working window"
		case i > 0 && b.Start < r.Breaks[i-1].End:
			fields["breaks"] = "breaks must not overlap"
		}
	}
	switch r.Recurrence {
	case RecurrenceWeekly:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			fields["dayOfWeek"] = "weekly rules need a day between 0 (Sunday) and 6"
		}
	case RecurrenceMonthly:
		if r.DayOfMonth == nil || *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			fields["dayOfMonth"] = "monthly rules need a day between 1 and 31"
		}
	case RecurrenceDaily:
	default:
		fields["recurrence"] = "must be daily, weekly or monthly"
	}
	return fields
}
