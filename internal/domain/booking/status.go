package booking

import (
	"fmt"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// AllStatuses lists every booking status.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow}

// transitions is the booking lifecycle. pending is only ever assigned at
// creation; terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCancelled: nil,
	StatusCompleted: nil,
	StatusNoShow:    nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Active reports whether the booking still holds a place in the queue.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Allowed returns the statuses reachable from s.
func (s Status) Allowed() []Status {
	return transitions[s]
}

// AssertValidTransition fails with INVALID_TRANSITION unless requested is
// reachable from current in one step. Self-transitions are never allowed.
func AssertValidTransition(current, requested Status) error {
	for _, next := range current.Allowed() {
		if next == requested {
			return nil
		}
	}
	return apperr.Conflict(apperr.CodeInvalidTransition,
		fmt.Sprintf("cannot change booking status from %s to %s", current, requested))
}
