package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

// LogNotifier stands in for the outbound email dispatcher. Delivery is
// best-effort and fire-and-forget; nothing here may affect appointment
// state.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) AppointmentBooked(ctx context.Context, appt *scheduling.Appointment) {
	log.Info().
		Stringer("appointment_id", appt.ID).
		Stringer("patient_id", appt.PatientID).
		Stringer("doctor_id", appt.DoctorID).
		Time("start", appt.AppointmentDateTime).
		Msg("notify: appointment booked")
}

func (n *LogNotifier) AppointmentCancelled(ctx context.Context, appt *scheduling.Appointment) {
	log.Info().
		Stringer("appointment_id", appt.ID).
		Stringer("patient_id", appt.PatientID).
		Stringer("doctor_id", appt.DoctorID).
		Msg("notify: appointment cancelled")
}
