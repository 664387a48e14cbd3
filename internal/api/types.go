package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

type BookAppointmentRequest struct {
	DoctorID            string    `json:"doctor_id"`
	AppointmentDateTime time.Time `json:"appointment_datetime"`
	AppointmentType     string    `json:"appointment_type"`
	Symptoms            string    `json:"symptoms"`
}

type UpdateAppointmentRequest struct {
	Symptoms     *string `json:"symptoms,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Prescription *string `json:"prescription,omitempty"`
}

type PaymentRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type SubmitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type CreateScheduleRequest struct {
	Weekday             string `json:"weekday"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	DoctorID            uuid.UUID  `json:"doctor_id"`
	AppointmentDateTime time.Time  `json:"appointment_datetime"`
	DurationMinutes     int        `json:"duration_minutes"`
	AppointmentType     string     `json:"appointment_type"`
	Status              string     `json:"status"`
	Symptoms            string     `json:"symptoms"`
	Notes               string     `json:"notes,omitempty"`
	Prescription        string     `json:"prescription,omitempty"`
	Amount              float64    `json:"amount"`
	IsPaid              bool       `json:"is_paid"`
	PaymentReference    *string    `json:"payment_reference,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		DoctorID:            a.DoctorID,
		AppointmentDateTime: a.AppointmentDateTime,
		DurationMinutes:     a.DurationMinutes,
		AppointmentType:     string(a.Type),
		Status:              string(a.Status),
		Symptoms:            a.Symptoms,
		Notes:               a.Notes,
		Prescription:        a.Prescription,
		Amount:              a.Amount,
		IsPaid:              a.IsPaid,
		PaymentReference:    a.PaymentReference,
		CompletedAt:         a.CompletedAt,
		CreatedAt:           a.CreatedAt,
	}
}

type DoctorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialization  string    `json:"specialization"`
	ConsultationFee float64   `json:"consultation_fee"`
	IsAvailable     bool      `json:"is_available"`
	Rating          float64   `json:"rating"`
	TotalRatings    int       `json:"total_ratings"`
}

func toDoctorResponse(d *scheduling.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:              d.ID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		ConsultationFee: d.ConsultationFee,
		IsAvailable:     d.IsAvailable,
		Rating:          d.Rating,
		TotalRatings:    d.TotalRatings,
	}
}

type ScheduleResponse struct {
	ID                  uuid.UUID `json:"id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	Weekday             string    `json:"weekday"`
	StartTime           string    `json:"start_time"`
	EndTime             string    `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	IsAvailable         bool      `json:"is_available"`
}

func toScheduleResponse(s *scheduling.DoctorSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:                  s.ID,
		DoctorID:            s.DoctorID,
		Weekday:             s.Weekday.String(),
		StartTime:           s.StartTime.String(),
		EndTime:             s.EndTime.String(),
		SlotDurationMinutes: s.SlotDurationMinutes,
		IsAvailable:         s.IsAvailable,
	}
}

type SlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

type ReviewResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toReviewResponse(r *scheduling.Review) ReviewResponse {
	return ReviewResponse{
		ID:        r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
