package scheduling

// NextRating folds one new rating into a doctor's running aggregate and
// returns the pair to persist. Pure; callers own storage and preconditions
// (completed appointment, no prior review).
func NextRating(oldAverage float64, oldCount int, rating int) (newAverage float64, newCount int) {
	newCount = oldCount + 1
	newAverage = (oldAverage*float64(oldCount) + float64(rating)) / float64(newCount)
	return newAverage, newCount
}

func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
