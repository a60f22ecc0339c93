package engine

import (
	"cmp"
	"slices"
	"time"
)

const (
	dateTimeLayout = "2006-01-02 15:04"
	clockLayout    = "15:04"
)

// Extract decodes the chosen variables into bookings ordered by start, then seat.
func Extract(m *Model, sol Solution, days []time.Time, dayStart time.Duration) []Booking {
	bookings := make([]Booking, 0, len(sol.Chosen))
	for _, v := range sol.Chosen {
		i, j, d, h := m.Coords(v)
		t := m.Tasks[i]
		opening := int(dayStart / time.Minute)
		start := wallClock(days[d], opening+60*h)
		end := wallClock(days[d], opening+60*(h+t.Duration))
		bookings = append(bookings, Booking{
			TaskID:         t.ID,
			Seat:           j,
			PatientName:    t.PatientName,
			ProcedureType:  t.ProcedureType,
			TurnAroundTime: t.Duration,
			Start:          start,
			End:            end,
			ScheduledTime:  FormatRange(start, end),
		})
	}

	slices.SortStableFunc(bookings, func(a, b Booking) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Seat, b.Seat)
	})
	return bookings
}

// wallClock returns the instant minutes past midnight on day's calendar date,
// counted on the wall clock of day's location so DST changes do not shift slots.
func wallClock(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, day.Location())
}

// FormatRange renders "2006-01-02 15:04 - 17:04".
func FormatRange(start, end time.Time) string {
	return start.Format(dateTimeLayout) + " - " + end.Format(clockLayout)
}
