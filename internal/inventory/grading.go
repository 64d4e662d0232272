package inventory

import "time"

const (
	cautionWithinDays = 90
	managedWithinDays = 365
)

// BusinessDate returns the calendar date of t in loc as a UTC midnight.
func BusinessDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil counts whole calendar days from today to expiry; negative once expired.
func DaysUntil(today, expiry time.Time) int {
	ty, tm, td := today.Date()
	ey, em, ed := expiry.Date()
	from := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	to := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// GradeFor derives the quality grade of a lot expiring on expiry, as seen on today.
func GradeFor(expiry, today time.Time) Grade {
	days := DaysUntil(today, expiry)
	switch {
	case days < 0:
		return GradeDisposal
	case days < cautionWithinDays:
		return GradeCaution
	case days < managedWithinDays:
		return GradeManaged
	default:
		return GradeNormal
	}
}
