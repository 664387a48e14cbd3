package scheduling

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving this package wraps exactly one of these
// so callers can decide between "fix the request" and "retry" with errors.Is.
// ErrUnavailable is the only kind safe to retry.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid request")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("not authorized")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

var (
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrScheduleNotFound    = fmt.Errorf("schedule %w", ErrNotFound)

	ErrSlotTaken       = fmt.Errorf("%w: slot already booked", ErrConflict)
	ErrScheduleExists  = fmt.Errorf("%w: schedule already exists for this weekday", ErrConflict)
	ErrDuplicateReview = fmt.Errorf("%w: patient already reviewed this doctor", ErrConflict)

	ErrSlotBeingBooked = fmt.Errorf("%w: slot is being booked, retry shortly", ErrUnavailable)

	ErrAlreadyPaid = fmt.Errorf("%w: appointment is already paid", ErrInvalidState)
)

func invalidTransition(from, to AppointmentStatus) error {
	return fmt.Errorf("%w: cannot move appointment from %s to %s", ErrInvalidState, from, to)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
