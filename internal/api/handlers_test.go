package api

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

// stubService embeds the interface so each test only fills in the calls it
// expects; anything else panics loudly.
type stubService struct {
	SchedulingService

	bookFn    func(ctx context.Context, caller scheduling.Caller, req scheduling.BookRequest) (*scheduling.Appointment, error)
	getFn     func(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	confirmFn func(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	paidFn    func(ctx context.Context, caller scheduling.Caller, id uuid.UUID, ref string) (*scheduling.Appointment, error)
	slotsFn   func(ctx context.Context, doctorID uuid.UUID, date time.Time) (iter.Seq[time.Time], error)
	doctorFn  func(ctx context.Context, id uuid.UUID) (*scheduling.Doctor, error)
	reviewFn  func(ctx context.Context, caller scheduling.Caller, req scheduling.ReviewRequest) (*scheduling.Review, error)
}

func (s *stubService) BookAppointment(ctx context.Context, caller scheduling.Caller, req scheduling.BookRequest) (*scheduling.Appointment, error) {
	return s.bookFn(ctx, caller, req)
}

func (s *stubService) GetAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.getFn(ctx, caller, id)
}

func (s *stubService) ConfirmAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error) {
	return s.confirmFn(ctx, caller, id)
}

func (s *stubService) MarkPaid(ctx context.Context, caller scheduling.Caller, id uuid.UUID, ref string) (*scheduling.Appointment, error) {
	return s.paidFn(ctx, caller, id, ref)
}

func (s *stubService) BookableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (iter.Seq[time.Time], error) {
	return s.slotsFn(ctx, doctorID, date)
}

func (s *stubService) GetDoctor(ctx context.Context, id uuid.UUID) (*scheduling.Doctor, error) {
	return s.doctorFn(ctx, id)
}

func (s *stubService) SubmitReview(ctx context.Context, caller scheduling.Caller, req scheduling.ReviewRequest) (*scheduling.Review, error) {
	return s.reviewFn(ctx, caller, req)
}

func newTestServer(svc SchedulingService) *httptest.Server {
	return httptest.NewServer(NewRouter(RouterConfig{Service: svc, Env: "test", Version: "test"}))
}

func doRequest(t *testing.T, method, url string, body any, identity *scheduling.Caller) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req.Header.Set("X-User-ID", identity.ID.String())
		req.Header.Set("X-User-Role", string(identity.Role))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NoError(t, resp.Body.Close())
	return body
}

func TestBookAppointment_Created(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}
	doctorID := uuid.New()
	slot := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

	svc := &stubService{
		bookFn: func(ctx context.Context, caller scheduling.Caller, req scheduling.BookRequest) (*scheduling.Appointment, error) {
			assert.Equal(t, patient, caller)
			assert.Equal(t, doctorID, req.DoctorID)
			assert.True(t, req.AppointmentDateTime.Equal(slot))
			return &scheduling.Appointment{
				ID:                  uuid.New(),
				PatientID:           caller.ID,
				DoctorID:            req.DoctorID,
				AppointmentDateTime: req.AppointmentDateTime,
				DurationMinutes:     30,
				Type:                req.Type,
				Status:              scheduling.StatusScheduled,
				Symptoms:            req.Symptoms,
				Amount:              500,
			}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments", map[string]any{
		"doctor_id":            doctorID.String(),
		"appointment_datetime": slot.Format(time.RFC3339),
		"appointment_type":     "in_person",
		"symptoms":             "chest pain",
	}, &patient)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "scheduled", got.Status)
	assert.Equal(t, 30, got.DurationMinutes)
	assert.Equal(t, 500.0, got.Amount)
	assert.False(t, got.IsPaid)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestBookAppointment_BadBody(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}
	srv := newTestServer(&stubService{})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/appointments", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("X-User-ID", patient.ID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request_body", decodeError(t, resp).Error)
}

func TestBookAppointment_BadDoctorID(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}
	srv := newTestServer(&stubService{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments", map[string]any{
		"doctor_id": "not-a-uuid",
	}, &patient)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_doctor_id", decodeError(t, resp).Error)
}

func TestDomainErrorMapping(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", scheduling.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{"unauthorized", scheduling.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{"not found", scheduling.ErrDoctorNotFound, http.StatusNotFound, "not_found"},
		{"slot taken", scheduling.ErrSlotTaken, http.StatusConflict, "conflict"},
		{"invalid state", scheduling.ErrAlreadyPaid, http.StatusUnprocessableEntity, "invalid_state"},
		{"lock contention", scheduling.ErrSlotBeingBooked, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{
				bookFn: func(ctx context.Context, caller scheduling.Caller, req scheduling.BookRequest) (*scheduling.Appointment, error) {
					return nil, tc.err
				},
			}
			srv := newTestServer(svc)
			defer srv.Close()

			resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments", map[string]any{
				"doctor_id": uuid.New().String(),
			}, &patient)

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			if tc.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "1", resp.Header.Get("Retry-After"))
			}
			assert.Equal(t, tc.wantCode, decodeError(t, resp).Error)
		})
	}
}

func TestAppointments_RequireIdentity(t *testing.T) {
	srv := newTestServer(&stubService{})
	defer srv.Close()

	for _, path := range []string{
		"/api/appointments",
		"/api/appointments/" + uuid.New().String() + "/confirm",
	} {
		resp := doRequest(t, http.MethodPost, srv.URL+path, map[string]any{}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "missing_identity", decodeError(t, resp).Error)
	}
}

func TestIdentityMiddleware_Invalid(t *testing.T) {
	srv := newTestServer(&stubService{})
	defer srv.Close()

	t.Run("bad uuid", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/appointments", nil)
		require.NoError(t, err)
		req.Header.Set("X-User-ID", "not-a-uuid")
		req.Header.Set("X-User-Role", "patient")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_identity", decodeError(t, resp).Error)
	})

	t.Run("unknown role", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/appointments", nil)
		require.NoError(t, err)
		req.Header.Set("X-User-ID", uuid.New().String())
		req.Header.Set("X-User-Role", "superuser")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_identity", decodeError(t, resp).Error)
	})
}

func TestTransitionEndpoint(t *testing.T) {
	doctor := scheduling.Caller{ID: uuid.New(), Role: scheduling.RoleDoctor}
	apptID := uuid.New()

	svc := &stubService{
		confirmFn: func(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error) {
			assert.Equal(t, doctor, caller)
			assert.Equal(t, apptID, id)
			return &scheduling.Appointment{ID: id, Status: scheduling.StatusConfirmed}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments/"+apptID.String()+"/confirm", nil, &doctor)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "confirmed", got.Status)
}

func TestTransitionEndpoint_BadID(t *testing.T) {
	doctor := scheduling.Caller{ID: uuid.New(), Role: scheduling.RoleDoctor}
	srv := newTestServer(&stubService{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments/not-a-uuid/confirm", nil, &doctor)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_id", decodeError(t, resp).Error)
}

func TestPaymentEndpoint(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}
	apptID := uuid.New()
	ref := "pay_abc123"

	svc := &stubService{
		paidFn: func(ctx context.Context, caller scheduling.Caller, id uuid.UUID, gotRef string) (*scheduling.Appointment, error) {
			assert.Equal(t, ref, gotRef)
			return &scheduling.Appointment{ID: id, Status: scheduling.StatusScheduled, IsPaid: true, PaymentReference: &gotRef}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/appointments/"+apptID.String()+"/payment", map[string]any{
		"payment_reference": ref,
	}, &patient)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, ref, *got.PaymentReference)
}

func TestListSlots(t *testing.T) {
	doctorID := uuid.New()
	day := time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

	svc := &stubService{
		slotsFn: func(ctx context.Context, id uuid.UUID, date time.Time) (iter.Seq[time.Time], error) {
			assert.Equal(t, doctorID, id)
			return func(yield func(time.Time) bool) {
				for i := 0; i < 3; i++ {
					if !yield(day.Add(time.Duration(9*60+30*i) * time.Minute)) {
						return
					}
				}
			}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/doctors/"+doctorID.String()+"/slots?date=2026-09-07", nil, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got SlotsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, doctorID, got.DoctorID)
	assert.Equal(t, "2026-09-07", got.Date)
	assert.Equal(t, []string{
		"2026-09-07T09:00:00Z",
		"2026-09-07T09:30:00Z",
		"2026-09-07T10:00:00Z",
	}, got.Slots)
}

func TestListSlots_BadDate(t *testing.T) {
	srv := newTestServer(&stubService{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/doctors/"+uuid.New().String()+"/slots?date=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_date", decodeError(t, resp).Error)
}

func TestGetDoctor_Public(t *testing.T) {
	doctorID := uuid.New()
	svc := &stubService{
		doctorFn: func(ctx context.Context, id uuid.UUID) (*scheduling.Doctor, error) {
			return &scheduling.Doctor{
				ID: id, Name: "Dr. Asha Rao", Specialization: "cardiology",
				ConsultationFee: 500, IsAvailable: true, Rating: 4.5, TotalRatings: 12,
			}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	// No identity headers: doctor reads are public.
	resp := doRequest(t, http.MethodGet, srv.URL+"/api/doctors/"+doctorID.String(), nil, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got DoctorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, doctorID, got.ID)
	assert.Equal(t, 4.5, got.Rating)
}

func TestSubmitReview(t *testing.T) {
	patient := scheduling.Caller{ID: uuid.New(), Role: scheduling.RolePatient}
	doctorID := uuid.New()

	svc := &stubService{
		reviewFn: func(ctx context.Context, caller scheduling.Caller, req scheduling.ReviewRequest) (*scheduling.Review, error) {
			assert.Equal(t, doctorID, req.DoctorID)
			assert.Equal(t, 5, req.Rating)
			return &scheduling.Review{
				ID: uuid.New(), DoctorID: req.DoctorID, PatientID: caller.ID,
				Rating: req.Rating, Comment: req.Comment,
			}, nil
		},
	}
	srv := newTestServer(svc)
	defer srv.Close()

	t.Run("requires identity", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/doctors/"+doctorID.String()+"/reviews", map[string]any{
			"rating": 5,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("created", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/doctors/"+doctorID.String()+"/reviews", map[string]any{
			"rating":  5,
			"comment": "thorough and kind",
		}, &patient)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var got ReviewResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 5, got.Rating)
		assert.Equal(t, patient.ID, got.PatientID)
	})
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(&stubService{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/health/live", nil, nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
}

func TestCreateSchedule(t *testing.T) {
	doctor := scheduling.Caller{ID: uuid.New(), Role: scheduling.RoleDoctor}

	svc := &stubService{}
	srv := newTestServer(svc)
	defer srv.Close()

	t.Run("bad weekday", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/doctors/"+doctor.ID.String()+"/schedules", map[string]any{
			"weekday":               "someday",
			"start_time":            "09:00",
			"end_time":              "12:00",
			"slot_duration_minutes": 30,
		}, &doctor)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_weekday", decodeError(t, resp).Error)
	})

	t.Run("bad start time", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/doctors/"+doctor.ID.String()+"/schedules", map[string]any{
			"weekday":               "monday",
			"start_time":            "9am",
			"end_time":              "12:00",
			"slot_duration_minutes": 30,
		}, &doctor)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_start_time", decodeError(t, resp).Error)
	})
}
