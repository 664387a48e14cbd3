package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository honoring the same serialization
// contract as the Postgres implementation: compare-and-swap updates and
// conflict errors on uniqueness violations.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	schedules    map[uuid.UUID]map[time.Weekday]*DoctorSchedule
	appointments map[uuid.UUID]*Appointment
	reviews      map[uuid.UUID][]*Review
	events       []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		schedules:    make(map[uuid.UUID]map[time.Weekday]*DoctorSchedule),
		appointments: make(map[uuid.UUID]*Appointment),
		reviews:      make(map[uuid.UUID][]*Review),
	}
}

func (r *memRepo) addDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = &d
}

func (r *memRepo) addPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
}

func (r *memRepo) addAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = &a
}

func (r *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Doctor
	for _, d := range r.doctors {
		if !d.IsAvailable {
			continue
		}
		if f.Specialization != "" && d.Specialization != f.Specialization {
			continue
		}
		if f.MinFee != nil && d.ConsultationFee < *f.MinFee {
			continue
		}
		if f.MaxFee != nil && d.ConsultationFee > *f.MaxFee {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out, nil
}

func (r *memRepo) ListTopRatedDoctors(ctx context.Context, minRating float64, limit int) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Doctor
	for _, d := range r.doctors {
		if d.IsAvailable && d.Rating >= minRating && d.TotalRatings > 0 {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateSchedule(ctx context.Context, sch *DoctorSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDay := r.schedules[sch.DoctorID]
	if byDay == nil {
		byDay = make(map[time.Weekday]*DoctorSchedule)
		r.schedules[sch.DoctorID] = byDay
	}
	if _, exists := byDay[sch.Weekday]; exists {
		return ErrScheduleExists
	}
	cp := *sch
	byDay[sch.Weekday] = &cp
	return nil
}

func (r *memRepo) GetScheduleForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) (*DoctorSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sch, ok := r.schedules[doctorID][weekday]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	cp := *sch
	return &cp, nil
}

func (r *memRepo) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DoctorSchedule
	for _, sch := range r.schedules[doctorID] {
		out = append(out, *sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (r *memRepo) CreateAppointment(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appointments {
		if existing.DoctorID == appt.DoctorID &&
			!existing.Status.Terminal() &&
			existing.AppointmentDateTime.Equal(appt.AppointmentDateTime) {
			return ErrSlotTaken
		}
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	cp := *appt
	r.appointments[appt.ID] = &cp
	return nil
}

func (r *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AppointmentDateTime.After(out[j].AppointmentDateTime)
	})
	return out, nil
}

func (r *memRepo) HasActiveOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || a.Status.Terminal() {
			continue
		}
		if Overlaps(start, end.Sub(start), a.AppointmentDateTime, time.Duration(a.DurationMinutes)*time.Minute) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, completedAt *time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if completedAt != nil {
		a.CompletedAt = completedAt
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, allowed []AppointmentStatus, u UpdateDetails) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	permitted := false
	for _, st := range allowed {
		if a.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, ErrAppointmentNotFound
	}
	if u.Symptoms != nil {
		a.Symptoms = *u.Symptoms
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.Prescription != nil {
		a.Prescription = *u.Prescription
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) MarkAppointmentPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.IsPaid {
		return nil, ErrAppointmentNotFound
	}
	a.IsPaid = true
	a.PaymentReference = &paymentRef
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListOverdueActive(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if (a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.AppointmentDateTime.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) HasCompletedAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.PatientID == patientID && a.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) SaveReview(ctx context.Context, review *Review) (float64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[review.DoctorID]
	if !ok {
		return 0, 0, ErrDoctorNotFound
	}
	for _, existing := range r.reviews[review.DoctorID] {
		if existing.PatientID == review.PatientID {
			return 0, 0, ErrDuplicateReview
		}
	}
	review.CreatedAt = time.Now()
	cp := *review
	r.reviews[review.DoctorID] = append(r.reviews[review.DoctorID], &cp)
	d.Rating, d.TotalRatings = NextRating(d.Rating, d.TotalRatings, review.Rating)
	return d.Rating, d.TotalRatings, nil
}

func (r *memRepo) ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Review
	for _, rev := range r.reviews[doctorID] {
		out = append(out, *rev)
	}
	return out, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// memLocker serializes per doctor with plain mutexes; unlike the Redis
// locker it blocks instead of failing, which makes concurrency tests
// deterministic.
type memLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *memLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type nopNotifier struct{}

func (nopNotifier) AppointmentBooked(ctx context.Context, appt *Appointment)    {}
func (nopNotifier) AppointmentCancelled(ctx context.Context, appt *Appointment) {}
