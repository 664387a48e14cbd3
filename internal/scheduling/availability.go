package scheduling

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
)

// SlotTimes yields the bookable slot start times the schedule produces on
// the given date, in order. The sequence is lazy and restartable. A trailing
// window shorter than the slot duration is discarded, and a schedule marked
// unavailable (or for a different weekday) yields nothing.
func (s DoctorSchedule) SlotTimes(date time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !s.IsAvailable || date.Weekday() != s.Weekday {
			return
		}
		d := s.SlotDuration()
		if d <= 0 {
			return
		}
		end := s.EndTime.On(date)
		for start := s.StartTime.On(date); !start.Add(d).After(end); start = start.Add(d) {
			if !yield(start) {
				return
			}
		}
	}
}

// containsSlot reports whether t lands exactly on the schedule's grid for
// t's own date.
func (s DoctorSchedule) containsSlot(t time.Time) bool {
	for slot := range s.SlotTimes(t) {
		if slot.Equal(t) {
			return true
		}
		if slot.After(t) {
			return false
		}
	}
	return false
}

var emptySlots iter.Seq[time.Time] = func(yield func(time.Time) bool) {}

// BookableSlots returns the ordered slot start times for a doctor on a date.
// A missing or disabled schedule yields an empty sequence; only a missing
// doctor is an error.
func (s *Service) BookableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (iter.Seq[time.Time], error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	sch, err := s.repo.GetScheduleForWeekday(ctx, doctorID, date.Weekday())
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return emptySlots, nil
		}
		return nil, err
	}

	return sch.SlotTimes(date), nil
}
