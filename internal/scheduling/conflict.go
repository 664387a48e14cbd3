package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open intervals [s1, s1+d1) and
// [s2, s2+d2) share any instant. Equal starts always overlap.
func Overlaps(s1 time.Time, d1 time.Duration, s2 time.Time, d2 time.Duration) bool {
	return s2.Add(d2).After(s1) && s2.Before(s1.Add(d1))
}

// HasConflict reports whether booking the candidate window would collide
// with an existing appointment in an active status for the doctor.
func (s *Service) HasConflict(ctx context.Context, doctorID uuid.UUID, candidateStart time.Time, duration time.Duration) (bool, error) {
	return s.repo.HasActiveOverlap(ctx, doctorID, candidateStart, candidateStart.Add(duration))
}
