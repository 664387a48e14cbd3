package scheduling

// The appointment state machine. Creation always enters scheduled; completed,
// cancelled and no_show are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authorizeTransition checks who may request the move before the machine
// decides whether the move exists at all. Cancellation belongs to the owning
// patient (or an admin); everything that advances the visit belongs to the
// assigned doctor (or an admin).
func authorizeTransition(caller Caller, appt *Appointment, to AppointmentStatus) error {
	if caller.Role == RoleAdmin {
		return nil
	}

	switch to {
	case StatusCancelled:
		if caller.Role == RolePatient && caller.ID == appt.PatientID {
			return nil
		}
		return unauthorizedf("only the owning patient or an admin may cancel")
	case StatusConfirmed, StatusInProgress, StatusCompleted, StatusNoShow:
		if caller.Role == RoleDoctor && caller.ID == appt.DoctorID {
			return nil
		}
		return unauthorizedf("only the assigned doctor or an admin may move to %s", to)
	}
	return unauthorizedf("transition to %s is not callable", to)
}

// detailStatuses returns the statuses in which the requested field edits are
// legal. Clinical free text (notes, prescription) is writable only while the
// visit is confirmed or in progress; symptoms may be amended until the visit
// starts. The result is the intersection over the requested fields.
func detailStatuses(u UpdateDetails) []AppointmentStatus {
	allowed := map[AppointmentStatus]bool{
		StatusScheduled:  true,
		StatusConfirmed:  true,
		StatusInProgress: true,
	}
	if u.Notes != nil || u.Prescription != nil {
		allowed[StatusScheduled] = false
	}
	if u.Symptoms != nil {
		allowed[StatusInProgress] = false
	}

	var out []AppointmentStatus
	for _, st := range ActiveStatuses {
		if allowed[st] {
			out = append(out, st)
		}
	}
	return out
}
