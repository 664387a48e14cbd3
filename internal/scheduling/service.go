package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medicare/appointment-scheduling/internal/config"
	redisclient "github.com/medicare/appointment-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentPaid      = "APPOINTMENT_PAID"
	EventDoctorReviewed       = "DOCTOR_REVIEWED"
)

const (
	minSlotDurationMinutes = 15
	topRatedFloor          = 4.0
	topRatedLimit          = 10
)

// Notifier delivers best-effort notifications after state changes. Failures
// must never roll back the appointment; implementations log and move on.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt *Appointment)
	AppointmentCancelled(ctx context.Context, appt *Appointment)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	cfg      config.Config
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
	}
}

type BookRequest struct {
	DoctorID            uuid.UUID
	AppointmentDateTime time.Time
	Type                AppointmentType
	Symptoms            string
}

// BookAppointment reserves a slot for the calling patient. The
// check-then-create sequence runs under a per-doctor distributed lock so
// two concurrent requests for overlapping slots cannot both succeed;
// bookings for other doctors are unaffected.
func (s *Service) BookAppointment(ctx context.Context, caller Caller, req BookRequest) (*Appointment, error) {
	if caller.Role != RolePatient {
		return nil, unauthorizedf("only patients may book appointments")
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		return nil, validationf("symptoms are required")
	}
	if _, err := ParseAppointmentType(string(req.Type)); err != nil {
		return nil, err
	}
	if !req.AppointmentDateTime.After(time.Now()) {
		return nil, validationf("appointment time must be in the future")
	}

	if _, err := s.repo.GetPatientByID(ctx, caller.ID); err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsAvailable {
		return nil, validationf("doctor is not accepting appointments")
	}

	sch, err := s.repo.GetScheduleForWeekday(ctx, req.DoctorID, req.AppointmentDateTime.Weekday())
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return nil, validationf("doctor has no bookable slots on %s", req.AppointmentDateTime.Weekday())
		}
		return nil, err
	}
	if !sch.containsSlot(req.AppointmentDateTime) {
		return nil, validationf("requested time is not on the doctor's slot grid")
	}

	appt := &Appointment{
		ID:                  uuid.New(),
		PatientID:           caller.ID,
		DoctorID:            req.DoctorID,
		AppointmentDateTime: req.AppointmentDateTime,
		DurationMinutes:     sch.SlotDurationMinutes,
		Type:                req.Type,
		Status:              StatusScheduled,
		Symptoms:            req.Symptoms,
		Amount:              doctor.ConsultationFee,
	}

	err = s.locker.WithDoctorLock(ctx, req.DoctorID, func(lockCtx context.Context) error {
		// Re-check inside the critical section.
		conflict, err := s.HasConflict(lockCtx, req.DoctorID, req.AppointmentDateTime, sch.SlotDuration())
		if err != nil {
			return fmt.Errorf("check conflict: %w", err)
		}
		if conflict {
			return ErrSlotTaken
		}

		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return err
		}

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  req.DoctorID.String(),
			"patient_id": caller.ID.String(),
			"start":      req.AppointmentDateTime,
			"amount":     doctor.ConsultationFee,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	go s.notifier.AppointmentBooked(context.WithoutCancel(ctx), appt)

	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(caller, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointments scopes the listing by the caller's role: patients and
// doctors see their own, admins see everything.
func (s *Service) ListAppointments(ctx context.Context, caller Caller, status *AppointmentStatus, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	f := AppointmentFilter{Status: status, Limit: limit, Offset: offset}
	switch caller.Role {
	case RolePatient:
		id := caller.ID
		f.PatientID = &id
	case RoleDoctor:
		id := caller.ID
		f.DoctorID = &id
	case RoleAdmin:
	default:
		return nil, unauthorizedf("unknown role %q", caller.Role)
	}

	return s.repo.ListAppointments(ctx, f)
}

func authorizeRead(caller Caller, appt *Appointment) error {
	switch {
	case caller.Role == RoleAdmin:
		return nil
	case caller.Role == RolePatient && caller.ID == appt.PatientID:
		return nil
	case caller.Role == RoleDoctor && caller.ID == appt.DoctorID:
		return nil
	}
	return unauthorizedf("appointment belongs to another caller")
}

func (s *Service) ConfirmAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, caller, id, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentConfirmed, nil)
	return appt, nil
}

func (s *Service) StartAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, caller, id, StatusInProgress)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentStarted, nil)
	return appt, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, caller, id, StatusCompleted)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
		"completed_at": appt.CompletedAt,
	})
	return appt, nil
}

func (s *Service) CancelAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, caller, id, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, nil)
	go s.notifier.AppointmentCancelled(context.WithoutCancel(ctx), appt)
	return appt, nil
}

// MarkNoShow records that the patient never arrived. Callable by the
// assigned doctor or an admin, and only once the scheduled time has passed.
func (s *Service) MarkNoShow(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, caller, id, StatusNoShow)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{"reason": "manual"})
	return appt, nil
}

// transition loads, authorizes, checks the machine, then applies the move
// with a compare-and-swap on the loaded status. A concurrent writer makes
// the swap miss; we re-read so the caller sees the real current state
// instead of silently overwriting it.
func (s *Service) transition(ctx context.Context, caller Caller, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(caller, appt, to); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, invalidTransition(appt.Status, to)
	}
	if to == StatusNoShow && time.Now().Before(appt.AppointmentDateTime) {
		return nil, validationf("cannot mark no-show before the scheduled time")
	}

	var completedAt *time.Time
	if to == StatusCompleted {
		now := time.Now()
		completedAt = &now
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to, completedAt)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			current, rerr := s.repo.GetAppointmentByID(ctx, id)
			if rerr != nil {
				return nil, rerr
			}
			return nil, invalidTransition(current.Status, to)
		}
		return nil, err
	}
	return updated, nil
}

// UpdateAppointmentDetails edits free-text fields under the lifecycle gate.
// Notes and prescription are clinical output and belong to the assigned
// doctor; symptoms may also be amended by the owning patient.
func (s *Service) UpdateAppointmentDetails(ctx context.Context, caller Caller, id uuid.UUID, u UpdateDetails) (*Appointment, error) {
	if u.Symptoms == nil && u.Notes == nil && u.Prescription == nil {
		return nil, validationf("no fields to update")
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isAdmin := caller.Role == RoleAdmin
	isAssignedDoctor := caller.Role == RoleDoctor && caller.ID == appt.DoctorID
	isOwningPatient := caller.Role == RolePatient && caller.ID == appt.PatientID

	if u.Notes != nil || u.Prescription != nil {
		if !isAdmin && !isAssignedDoctor {
			return nil, unauthorizedf("only the assigned doctor or an admin may edit notes or prescription")
		}
	}
	if u.Symptoms != nil && !isAdmin && !isAssignedDoctor && !isOwningPatient {
		return nil, unauthorizedf("symptoms may only be edited by the owning patient, the assigned doctor, or an admin")
	}

	allowed := detailStatuses(u)
	updated, err := s.repo.UpdateAppointmentDetails(ctx, id, allowed, u)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			current, rerr := s.repo.GetAppointmentByID(ctx, id)
			if rerr != nil {
				return nil, rerr
			}
			return nil, fmt.Errorf("%w: details are not editable while appointment is %s", ErrInvalidState, current.Status)
		}
		return nil, err
	}
	return updated, nil
}

// MarkPaid records the paid flag and the opaque reference handed over by
// the payment collaborator. One-shot: a second attempt fails.
func (s *Service) MarkPaid(ctx context.Context, caller Caller, id uuid.UUID, paymentRef string) (*Appointment, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return nil, validationf("payment reference is required")
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != RoleAdmin && !(caller.Role == RolePatient && caller.ID == appt.PatientID) {
		return nil, unauthorizedf("only the owning patient or an admin may record payment")
	}

	updated, err := s.repo.MarkAppointmentPaid(ctx, id, paymentRef)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAlreadyPaid
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentPaid, map[string]any{
		"payment_reference": paymentRef,
	})
	return updated, nil
}

type ReviewRequest struct {
	DoctorID uuid.UUID
	Rating   int
	Comment  string
}

// SubmitReview records a one-time review and folds it into the doctor's
// rating aggregate. Requires a completed appointment with the doctor.
func (s *Service) SubmitReview(ctx context.Context, caller Caller, req ReviewRequest) (*Review, error) {
	if caller.Role != RolePatient {
		return nil, unauthorizedf("only patients may submit reviews")
	}
	if !ValidRating(req.Rating) {
		return nil, validationf("rating must be between 1 and 5")
	}

	if _, err := s.repo.GetDoctorByID(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	completed, err := s.repo.HasCompletedAppointment(ctx, req.DoctorID, caller.ID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, validationf("a completed appointment with this doctor is required before reviewing")
	}

	review := &Review{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: caller.ID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}

	newAverage, newCount, err := s.repo.SaveReview(ctx, review)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, uuid.Nil, EventDoctorReviewed, map[string]any{
		"doctor_id":     req.DoctorID.String(),
		"patient_id":    caller.ID.String(),
		"rating":        req.Rating,
		"new_average":   newAverage,
		"total_ratings": newCount,
	})
	return review, nil
}

type ScheduleRequest struct {
	Weekday             time.Weekday
	StartTime           TimeOfDay
	EndTime             TimeOfDay
	SlotDurationMinutes int
}

// AddSchedule creates the weekly availability row for one weekday. Doctors
// manage their own; admins may manage anyone's.
func (s *Service) AddSchedule(ctx context.Context, caller Caller, doctorID uuid.UUID, req ScheduleRequest) (*DoctorSchedule, error) {
	if caller.Role != RoleAdmin && !(caller.Role == RoleDoctor && caller.ID == doctorID) {
		return nil, unauthorizedf("only the doctor or an admin may manage schedules")
	}
	if req.Weekday < time.Sunday || req.Weekday > time.Saturday {
		return nil, validationf("unknown weekday %d", req.Weekday)
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, validationf("start time must be before end time")
	}
	if req.SlotDurationMinutes < minSlotDurationMinutes {
		return nil, validationf("slot duration must be at least %d minutes", minSlotDurationMinutes)
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	sch := &DoctorSchedule{
		ID:                  uuid.New(),
		DoctorID:            doctorID,
		Weekday:             req.Weekday,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		SlotDurationMinutes: req.SlotDurationMinutes,
		IsAvailable:         true,
	}
	if err := s.repo.CreateSchedule(ctx, sch); err != nil {
		return nil, err
	}
	return sch, nil
}

func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListSchedules(ctx, doctorID)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListDoctors(ctx, f)
}

func (s *Service) TopRatedDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListTopRatedDoctors(ctx, topRatedFloor, topRatedLimit)
}

func (s *Service) ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Review, error) {
	if limit <= 0 {
		limit = 20
	}
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListReviews(ctx, doctorID, limit, offset)
}

// SweepNoShows marks scheduled/confirmed appointments whose start time lies
// further in the past than the grace window. Intended for the worker; a
// raced row is skipped, not retried.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.NoShowGrace)
	overdue, err := s.repo.ListOverdueActive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusNoShow, nil)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("no-show sweep update failed")
			}
			continue
		}
		marked++
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{"reason": "sweep"})
	}
	return marked, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			log.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
			data = nil
		}
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if appointmentID != uuid.Nil {
		id := appointmentID
		ev.AppointmentID = &id
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
