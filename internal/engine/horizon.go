package engine

import "time"

// BuildHorizon returns the Monday-Friday dates in [start, end], as midnights in loc.
// An inverted range yields an empty horizon.
func BuildHorizon(start, end time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	first := dateOf(start, loc)
	last := dateOf(end, loc)

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		days = append(days, d)
	}
	return days
}

// dateOf drops the clock part, keeping the calendar date as written.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
