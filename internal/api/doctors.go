package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

func listDoctorsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f := scheduling.DoctorFilter{
			Specialization: q.Get("specialization"),
			Limit:          queryInt(r, "limit", 20),
			Offset:         queryInt(r, "offset", 0),
		}
		if v := q.Get("min_fee"); v != "" {
			fee, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_min_fee", "min_fee must be a number")
				return
			}
			f.MinFee = &fee
		}
		if v := q.Get("max_fee"); v != "" {
			fee, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_max_fee", "max_fee must be a number")
				return
			}
			f.MaxFee = &fee
		}

		doctors, err := svc.ListDoctors(r.Context(), f)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			resp = append(resp, toDoctorResponse(&doctors[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func topRatedDoctorsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.TopRatedDoctors(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			resp = append(resp, toDoctorResponse(&doctors[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDoctorHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		doctor, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doctor))
	}
}

func listSlotsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.BookableSlots(r.Context(), id, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := SlotsResponse{DoctorID: id, Date: dateStr, Slots: []string{}}
		for slot := range slots {
			resp.Slots = append(resp.Slots, slot.Format(time.RFC3339))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createScheduleHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())

		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		weekday, ok2 := parseWeekday(req.Weekday)
		if !ok2 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be a day name, e.g. monday")
			return
		}
		startTime, err := scheduling.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		endTime, err := scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		sch, err := svc.AddSchedule(r.Context(), caller, id, scheduling.ScheduleRequest{
			Weekday:             weekday,
			StartTime:           startTime,
			EndTime:             endTime,
			SlotDurationMinutes: req.SlotDurationMinutes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toScheduleResponse(sch))
	}
}

func listSchedulesHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		schedules, err := svc.ListSchedules(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]ScheduleResponse, 0, len(schedules))
		for i := range schedules {
			resp = append(resp, toScheduleResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func submitReviewHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())

		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req SubmitReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		review, err := svc.SubmitReview(r.Context(), caller, scheduling.ReviewRequest{
			DoctorID: id,
			Rating:   req.Rating,
			Comment:  req.Comment,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toReviewResponse(review))
	}
}

func listReviewsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		reviews, err := svc.ListReviews(r.Context(), id, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]ReviewResponse, 0, len(reviews))
		for i := range reviews {
			resp = append(resp, toReviewResponse(&reviews[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(s)]
	return d, ok
}
