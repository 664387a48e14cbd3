package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names the schema declares; violations become domain conflicts.
const (
	constraintActiveSlot      = "appointments_active_slot_idx"
	constraintReviewPerDoctor = "reviews_doctor_id_patient_id_key"
	constraintScheduleWeekday = "doctor_schedules_doctor_id_weekday_key"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

// dbErr classifies infrastructure failures: timeouts and cancellations are
// retryable (ErrUnavailable), anything else passes through wrapped.
func dbErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName == constraint
	}
	return false
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.ConsultationFee,
		&d.IsAvailable,
		&d.Rating,
		&d.TotalRatings,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, dbErr("scan doctor", err)
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, dbErr("scan patient", err)
	}
	return &p, nil
}

func scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var s DoctorSchedule
	var weekday int
	var startTime, endTime string

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&weekday,
		&startTime,
		&endTime,
		&s.SlotDurationMinutes,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, dbErr("scan schedule", err)
	}

	s.Weekday = time.Weekday(weekday)
	if s.StartTime, err = ParseTimeOfDay(startTime); err != nil {
		return nil, dbErr("scan schedule", err)
	}
	if s.EndTime, err = ParseTimeOfDay(endTime); err != nil {
		return nil, dbErr("scan schedule", err)
	}
	return &s, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, appointment_datetime, duration_minutes,
	appointment_type, status, symptoms, notes, prescription,
	amount, is_paid, payment_reference, completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.AppointmentDateTime,
		&a.DurationMinutes,
		&a.Type,
		&a.Status,
		&a.Symptoms,
		&a.Notes,
		&a.Prescription,
		&a.Amount,
		&a.IsPaid,
		&a.PaymentReference,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, dbErr("scan appointment", err)
	}
	return &a, nil
}

func scanReview(row pgx.Row) (*Review, error) {
	var r Review
	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.PatientID,
		&r.Rating,
		&r.Comment,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("review %w", ErrNotFound)
		}
		return nil, dbErr("scan review", err)
	}
	return &r, nil
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, consultation_fee, is_available, rating, total_ratings, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization, consultation_fee, is_available, rating, total_ratings, created_at, updated_at
		FROM doctors
		WHERE is_available = true
		  AND ($1 = '' OR specialization = $1)
		  AND ($2::numeric IS NULL OR consultation_fee >= $2)
		  AND ($3::numeric IS NULL OR consultation_fee <= $3)
		ORDER BY rating DESC, name
		LIMIT $4 OFFSET $5
	`, f.Specialization, f.MinFee, f.MaxFee, f.Limit, f.Offset)
	if err != nil {
		return nil, dbErr("list doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list doctors", err)
	}
	return result, nil
}

func (r *PgRepository) ListTopRatedDoctors(ctx context.Context, minRating float64, limit int) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization, consultation_fee, is_available, rating, total_ratings, created_at, updated_at
		FROM doctors
		WHERE is_available = true AND rating >= $1 AND total_ratings > 0
		ORDER BY rating DESC, total_ratings DESC
		LIMIT $2
	`, minRating, limit)
	if err != nil {
		return nil, dbErr("list top rated doctors", err)
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list top rated doctors", err)
	}
	return result, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateSchedule(ctx context.Context, sch *DoctorSchedule) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctor_schedules (id, doctor_id, weekday, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, sch.ID, sch.DoctorID, int(sch.Weekday), sch.StartTime.String(), sch.EndTime.String(), sch.SlotDurationMinutes, sch.IsAvailable)

	if err := row.Scan(&sch.CreatedAt, &sch.UpdatedAt); err != nil {
		if isUniqueViolation(err, constraintScheduleWeekday) {
			return ErrScheduleExists
		}
		return dbErr("create schedule", err)
	}
	return nil
}

func (r *PgRepository) GetScheduleForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) (*DoctorSchedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, weekday, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at
		FROM doctor_schedules
		WHERE doctor_id = $1 AND weekday = $2
	`, doctorID, int(weekday))
	return scanSchedule(row)
}

func (r *PgRepository) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at
		FROM doctor_schedules
		WHERE doctor_id = $1
		ORDER BY weekday
	`, doctorID)
	if err != nil {
		return nil, dbErr("list schedules", err)
	}
	defer rows.Close()

	var result []DoctorSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list schedules", err)
	}
	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_datetime, duration_minutes,
			appointment_type, status, symptoms, notes, prescription,
			amount, is_paid, payment_reference, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', $9, false, NULL, NULL, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.AppointmentDateTime, appt.DurationMinutes,
		appt.Type, appt.Status, appt.Symptoms, appt.Amount)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		// The partial unique index backstops the doctor lock.
		if isUniqueViolation(err, constraintActiveSlot) {
			return ErrSlotTaken
		}
		return dbErr("create appointment", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::uuid IS NULL OR doctor_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY appointment_datetime DESC
		LIMIT $4 OFFSET $5
	`, f.PatientID, f.DoctorID, status, f.Limit, f.Offset)
	if err != nil {
		return nil, dbErr("list appointments", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list appointments", err)
	}
	return result, nil
}

func (r *PgRepository) HasActiveOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE doctor_id = $1
			  AND status = ANY($2)
			  AND appointment_datetime < $4
			  AND appointment_datetime + make_interval(mins => duration_minutes) > $3
		)
	`, doctorID, statusStrings(ActiveStatuses), start, end).Scan(&exists)
	if err != nil {
		return false, dbErr("check active overlap", err)
	}
	return exists, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, completedAt *time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    completed_at = COALESCE($4, completed_at),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, completedAt)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, allowed []AppointmentStatus, u UpdateDetails) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET symptoms = COALESCE($3, symptoms),
		    notes = COALESCE($4, notes),
		    prescription = COALESCE($5, prescription),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($2)
		RETURNING `+appointmentColumns+`
	`, id, statusStrings(allowed), u.Symptoms, u.Notes, u.Prescription)
	return scanAppointment(row)
}

func (r *PgRepository) MarkAppointmentPaid(ctx context.Context, id uuid.UUID, paymentRef string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET is_paid = true,
		    payment_reference = $2,
		    updated_at = now()
		WHERE id = $1
		  AND is_paid = false
		RETURNING `+appointmentColumns+`
	`, id, paymentRef)
	return scanAppointment(row)
}

func (r *PgRepository) ListOverdueActive(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND appointment_datetime < $1
	`, cutoff)
	if err != nil {
		return nil, dbErr("list overdue appointments", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list overdue appointments", err)
	}
	return result, nil
}

func (r *PgRepository) HasCompletedAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND patient_id = $2 AND status = 'completed'
		)
	`, doctorID, patientID).Scan(&exists)
	if err != nil {
		return false, dbErr("check completed appointment", err)
	}
	return exists, nil
}

// SaveReview locks the doctor row so two concurrent reviews cannot both
// fold into the same stale aggregate, then inserts and updates atomically.
func (r *PgRepository) SaveReview(ctx context.Context, review *Review) (float64, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, dbErr("begin review tx", err)
	}
	defer tx.Rollback(ctx)

	var oldAverage float64
	var oldCount int
	err = tx.QueryRow(ctx, `
		SELECT rating, total_ratings
		FROM doctors
		WHERE id = $1
		FOR UPDATE
	`, review.DoctorID).Scan(&oldAverage, &oldCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrDoctorNotFound
		}
		return 0, 0, dbErr("lock doctor aggregate", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (id, doctor_id, patient_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, review.ID, review.DoctorID, review.PatientID, review.Rating, review.Comment).Scan(&review.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintReviewPerDoctor) {
			return 0, 0, ErrDuplicateReview
		}
		return 0, 0, dbErr("insert review", err)
	}

	newAverage, newCount := NextRating(oldAverage, oldCount, review.Rating)

	_, err = tx.Exec(ctx, `
		UPDATE doctors
		SET rating = $2,
		    total_ratings = $3,
		    updated_at = now()
		WHERE id = $1
	`, review.DoctorID, newAverage, newCount)
	if err != nil {
		return 0, 0, dbErr("update doctor aggregate", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, dbErr("commit review tx", err)
	}
	return newAverage, newCount, nil
}

func (r *PgRepository) ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, patient_id, rating, comment, created_at
		FROM reviews
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, dbErr("list reviews", err)
	}
	defer rows.Close()

	var result []Review
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list reviews", err)
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return dbErr("insert event log", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
