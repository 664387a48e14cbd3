package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DoctorFilter narrows directory listings.
type DoctorFilter struct {
	Specialization string
	MinFee         *float64
	MaxFee         *float64
	Limit          int
	Offset         int
}

// AppointmentFilter narrows appointment listings. Nil fields are ignored.
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	Limit     int
	Offset    int
}

// UpdateDetails carries optional free-text edits; nil fields are untouched.
type UpdateDetails struct {
	Symptoms     *string
	Notes        *string
	Prescription *string
}

// Repository contains all DB interactions needed by the service.
//
// Mutations carry their own serialization contract: status and detail
// updates are compare-and-swap on the current status (a raced caller gets
// ErrAppointmentNotFound back and must re-read), appointment creation and
// review insertion surface uniqueness violations as the matching conflict
// error, and SaveReview persists the review together with the recomputed
// doctor aggregate atomically.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error)
	ListTopRatedDoctors(ctx context.Context, minRating float64, limit int) ([]Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateSchedule(ctx context.Context, sch *DoctorSchedule) error
	GetScheduleForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) (*DoctorSchedule, error)
	ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)

	// HasActiveOverlap is the conflict predicate: does any appointment in an
	// active status for the doctor overlap the half-open window [start, end)?
	HasActiveOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)

	// UpdateAppointmentStatus applies from->to only if the row still holds
	// from, optionally stamping completed_at.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, completedAt *time.Time) (*Appointment, error)

	// UpdateAppointmentDetails applies the edits only while the row's status
	// is one of allowed.
	UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, allowed []AppointmentStatus, u UpdateDetails) (*Appointment, error)

	// MarkAppointmentPaid flips is_paid false->true once and records the
	// opaque payment reference.
	MarkAppointmentPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*Appointment, error)

	// ListOverdueActive returns scheduled/confirmed appointments whose start
	// time lies before the cutoff, for the no-show sweep.
	ListOverdueActive(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	HasCompletedAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)

	// SaveReview inserts the review and folds it into the doctor's rating
	// aggregate in one transaction, returning the new aggregate pair.
	SaveReview(ctx context.Context, review *Review) (newAverage float64, newCount int, err error)
	ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Review, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
