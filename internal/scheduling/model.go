package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Caller is the authenticated identity supplied by the auth collaborator.
// This core trusts it and authorizes purely from it.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal statuses free the doctor's calendar; non-terminal ones occupy it.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that block a doctor's slot.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch AppointmentStatus(s) {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return AppointmentStatus(s), nil
	}
	return "", validationf("unknown appointment status %q", s)
}

type AppointmentType string

const (
	TypeInPerson  AppointmentType = "in_person"
	TypeVideo     AppointmentType = "video"
	TypeFollowUp  AppointmentType = "follow_up"
	TypeEmergency AppointmentType = "emergency"
)

func ParseAppointmentType(s string) (AppointmentType, error) {
	switch AppointmentType(s) {
	case TypeInPerson, TypeVideo, TypeFollowUp, TypeEmergency:
		return AppointmentType(s), nil
	}
	return "", validationf("unknown appointment type %q", s)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialization  string
	ConsultationFee float64
	IsAvailable     bool
	Rating          float64
	TotalRatings    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DoctorSchedule is a doctor's standing availability for one weekday.
// At most one row exists per (doctor, weekday).
type DoctorSchedule struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	Weekday             time.Weekday
	StartTime           TimeOfDay
	EndTime             TimeOfDay
	SlotDurationMinutes int
	IsAvailable         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (s DoctorSchedule) SlotDuration() time.Duration {
	return time.Duration(s.SlotDurationMinutes) * time.Minute
}

type Appointment struct {
	ID                  uuid.UUID
	PatientID           uuid.UUID
	DoctorID            uuid.UUID
	AppointmentDateTime time.Time
	// DurationMinutes is frozen from the schedule's slot duration at booking
	// so later schedule edits cannot change an existing window.
	DurationMinutes  int
	Type             AppointmentType
	Status           AppointmentStatus
	Symptoms         string
	Notes            string
	Prescription     string
	Amount           float64
	IsPaid           bool
	PaymentReference *string
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Window returns the half-open interval the appointment occupies.
func (a Appointment) Window() (start, end time.Time) {
	start = a.AppointmentDateTime
	end = start.Add(time.Duration(a.DurationMinutes) * time.Minute)
	return start, end
}

type Review struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Rating    int
	Comment   string
	CreatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
