// Package apperr defines the caller-visible error taxonomy shared by the
// domain services and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Stable machine codes.
const (
	CodeNotFound                = "NOT_FOUND"
	CodeDoctorNotFound          = "DOCTOR_NOT_FOUND"
	CodeClinicNotFound          = "CLINIC_NOT_FOUND"
	CodeBookingNotFound         = "BOOKING_NOT_FOUND"
	CodeRuleNotFound            = "RULE_NOT_FOUND"
	CodeAppointmentTypeNotFound = "APPOINTMENT_TYPE_NOT_FOUND"
	CodeDoctorNotInClinic       = "DOCTOR_NOT_IN_CLINIC"
	CodeNoAvailability          = "NO_AVAILABILITY"
	CodeNoAvailableDate         = "NO_AVAILABLE_DATE"
	CodeOutsideHours            = "OUTSIDE_HOURS"
	CodeDuringBreak             = "DURING_BREAK"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeDuplicateSerial         = "DUPLICATE_SERIAL"
	CodeRuleExists              = "RULE_EXISTS"
	CodeAlreadyAssigned         = "ALREADY_ASSIGNED"
	CodeValidation              = "VALIDATION_ERROR"
	CodeForbidden               = "FORBIDDEN"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_ERROR"
	CodeUnavailable             = "SERVICE_UNAVAILABLE"
)

// Error is a typed, caller-visible failure.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Fields    map[string]string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so sentinel-style comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the error onto the 4xx/5xx convention: 4xx means the caller
// must change something, 5xx means retry later.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		if e.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Validation builds a ValidationError with an optional field-level detail map.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Fields: fields}
}

// Internal wraps an infrastructure failure. The cause is kept for logging
// only; it is never rendered to the client.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err, Retryable: isRetryable(err)}
}

// FromStore leaves typed errors untouched and wraps anything else as Internal.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(err)
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// HasCode reports whether err carries the given machine code.
func HasCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}

// PostgreSQL SQLSTATE codes the services care about.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

// IsUniqueViolation reports whether err is a unique-constraint violation,
// optionally restricted to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isRetryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || IsRetryableDB(err)
}

// IsRetryableDB reports lock/deadlock/serialization failures.
func IsRetryableDB(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
		return true
	}
	return false
}
