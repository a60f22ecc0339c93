package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(seats int) *Scheduler {
	opts := DefaultOptions()
	opts.Seats = seats
	return NewScheduler(opts, nil)
}

func backlogOf(n int, procedure string) []BacklogEntry {
	out := make([]BacklogEntry, n)
	for i := range out {
		out[i] = BacklogEntry{PatientName: fmt.Sprintf("patient-%02d", i), ProcedureType: procedure}
	}
	return out
}

// clockMinutes is the wall-clock time of day in minutes.
func clockMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// assertScheduleInvariants checks the properties every schedule must have.
func assertScheduleInvariants(t *testing.T, s *Scheduler, req Request, res *Result) {
	t.Helper()
	opts := s.Options()

	seen := make(map[int]bool)
	for i, b := range res.Bookings {
		assert.False(t, seen[b.TaskID], "task %d booked twice", b.TaskID)
		seen[b.TaskID] = true

		assert.Equal(t, 60*b.TurnAroundTime, clockMinutes(b.End)-clockMinutes(b.Start), "duration fidelity")

		wd := b.Start.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		assert.False(t, b.Start.Before(dateOf(req.StartDate, opts.Location)))
		assert.False(t, b.Start.After(dateOf(req.EndDate, opts.Location).Add(24*time.Hour)))

		opening := int(opts.DayStart / time.Minute)
		assert.GreaterOrEqual(t, clockMinutes(b.Start), opening, "starts before opening")
		assert.LessOrEqual(t, clockMinutes(b.End), opening+60*opts.HoursPerDay, "ends after closing")
		assert.Equal(t, b.Start.YearDay(), b.End.YearDay(), "runs past midnight")

		assert.True(t, b.Seat >= 0 && b.Seat < opts.Seats)

		for _, other := range res.Bookings[i+1:] {
			if other.Seat != b.Seat {
				continue
			}
			overlap := b.Start.Before(other.End) && other.Start.Before(b.End)
			assert.False(t, overlap, "seat %d double booked: %s / %s", b.Seat, b.ScheduledTime, other.ScheduledTime)
		}

		if i > 0 {
			prev := res.Bookings[i-1]
			ordered := prev.Start.Before(b.Start) || (prev.Start.Equal(b.Start) && prev.Seat < b.Seat)
			assert.True(t, ordered, "bookings must be sorted by start then seat")
		}
	}
}

func TestSchedule_ScenarioA_SingleTask(t *testing.T) {
	s := newTestScheduler(1)
	req := Request{
		Backlog:   []BacklogEntry{{PatientName: "Ada", ProcedureType: "Infusion"}},
		Durations: []DurationEntry{{ProcedureType: "Infusion", TurnAroundHours: 2}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Bookings, 1)

	b := res.Bookings[0]
	assert.Equal(t, time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC), b.Start)
	assert.Equal(t, time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC), b.End)
	assert.Equal(t, "2026-10-19 08:00 - 10:00", b.ScheduledTime)
	assert.Equal(t, 0, b.Seat)
	assert.Equal(t, "Ada", b.PatientName)
	assert.Equal(t, 2, b.TurnAroundTime)
	assert.True(t, res.Diagnostics.Optimal)
	assert.NotEmpty(t, res.Diagnostics.Shortfalls, "one task cannot keep the seat busy all day")
	assertScheduleInvariants(t, s, req, res)
}

func TestSchedule_ScenarioB_SeatCapacity(t *testing.T) {
	s := newTestScheduler(10)
	req := Request{
		Backlog:   backlogOf(12, "Injection"),
		Durations: []DurationEntry{{ProcedureType: "Injection", TurnAroundHours: 1}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	assertScheduleInvariants(t, s, req, res)

	perHour := make(map[time.Time]int)
	for _, b := range res.Bookings {
		perHour[b.Start]++
	}
	for at, n := range perHour {
		assert.LessOrEqual(t, n, 10, "more than 10 seats busy at %s", at)
	}
	assert.Equal(t, 10, perHour[time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)])
	assert.Len(t, res.Bookings, 12)
	assert.Empty(t, res.Diagnostics.Unplaced)
}

func TestSchedule_ScenarioB_OverCapacityLeavesRemainderUnplaced(t *testing.T) {
	s := newTestScheduler(10)
	req := Request{
		Backlog:   backlogOf(12, "Day case"),
		Durations: []DurationEntry{{ProcedureType: "Day case", TurnAroundHours: 9}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	assertScheduleInvariants(t, s, req, res)
	assert.Len(t, res.Bookings, 10)
	assert.Len(t, res.Diagnostics.Unplaced, 2)
	assert.Equal(t, "patient-10", res.Diagnostics.Unplaced[0].PatientName)
}

func TestSchedule_ScenarioC_StartAfterEnd(t *testing.T) {
	s := newTestScheduler(10)
	req := Request{
		Backlog:   backlogOf(3, "Injection"),
		Durations: []DurationEntry{{ProcedureType: "Injection", TurnAroundHours: 1}},
		StartDate: date(2026, time.October, 23),
		EndDate:   date(2026, time.October, 19),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Bookings)
	assert.NotNil(t, res.Bookings)
	assert.True(t, res.Diagnostics.EmptyHorizon)
	assert.Len(t, res.Diagnostics.Unplaced, 3)
}

func TestSchedule_ScenarioD_MissingDuration(t *testing.T) {
	s := newTestScheduler(10)
	req := Request{
		Backlog: []BacklogEntry{
			{PatientName: "Ada", ProcedureType: "Injection"},
			{PatientName: "Ben", ProcedureType: "Unknown"},
		},
		Durations: []DurationEntry{{ProcedureType: "Injection", TurnAroundHours: 1}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "Ada", res.Tasks[0].PatientName)
	require.Len(t, res.Bookings, 1)
	assert.Equal(t, "Ada", res.Bookings[0].PatientName)
	assert.Equal(t, []JoinMismatch{{Row: 1, PatientName: "Ben", ProcedureType: "Unknown"}}, res.Diagnostics.Excluded)
}

func TestSchedule_RejectPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.MismatchPolicy = MismatchReject
	s := NewScheduler(opts, nil)

	_, err := s.Schedule(context.Background(), Request{
		Backlog:   []BacklogEntry{{PatientName: "Ben", ProcedureType: "Unknown"}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	})
	assert.Equal(t, "validation", ErrorKind(err))
}

func TestSchedule_UnschedulableTask(t *testing.T) {
	s := newTestScheduler(2)
	req := Request{
		Backlog: []BacklogEntry{
			{PatientName: "Ada", ProcedureType: "Marathon"},
			{PatientName: "Ben", ProcedureType: "Injection"},
		},
		Durations: []DurationEntry{
			{ProcedureType: "Marathon", TurnAroundHours: 10},
			{ProcedureType: "Injection", TurnAroundHours: 1},
		},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 20),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Bookings, 1)
	assert.Equal(t, "Ben", res.Bookings[0].PatientName)
	require.Len(t, res.Diagnostics.Unschedulable, 1)
	assert.Equal(t, "Ada", res.Diagnostics.Unschedulable[0].PatientName)
	assert.Empty(t, res.Diagnostics.Unplaced)
}

// Mixed multi-hour durations competing for one seat over two days must never overlap.
func TestSchedule_StressMixedDurationsOneSeat(t *testing.T) {
	s := newTestScheduler(1)
	durations := []DurationEntry{
		{ProcedureType: "One", TurnAroundHours: 1},
		{ProcedureType: "Two", TurnAroundHours: 2},
		{ProcedureType: "Three", TurnAroundHours: 3},
		{ProcedureType: "Four", TurnAroundHours: 4},
		{ProcedureType: "Five", TurnAroundHours: 5},
	}
	var backlog []BacklogEntry
	for i := 0; i < 15; i++ {
		backlog = append(backlog, BacklogEntry{
			PatientName:   fmt.Sprintf("patient-%02d", i),
			ProcedureType: durations[(i*7)%len(durations)].ProcedureType,
		})
	}
	req := Request{
		Backlog:   backlog,
		Durations: durations,
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 20),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	assertScheduleInvariants(t, s, req, res)

	booked := 0
	for _, b := range res.Bookings {
		booked += b.TurnAroundTime
	}
	assert.LessOrEqual(t, booked, 18)
	assert.Equal(t, len(res.Tasks), len(res.Bookings)+len(res.Diagnostics.Unplaced))
	assert.True(t, res.Diagnostics.Optimal)
}

func TestSchedule_MonotonicMaximality(t *testing.T) {
	s := newTestScheduler(2)
	durations := []DurationEntry{
		{ProcedureType: "Short", TurnAroundHours: 2},
		{ProcedureType: "Long", TurnAroundHours: 5},
	}
	full := []BacklogEntry{
		{PatientName: "a", ProcedureType: "Long"},
		{PatientName: "b", ProcedureType: "Short"},
		{PatientName: "c", ProcedureType: "Long"},
		{PatientName: "d", ProcedureType: "Short"},
		{PatientName: "e", ProcedureType: "Short"},
		{PatientName: "f", ProcedureType: "Long"},
		{PatientName: "g", ProcedureType: "Short"},
	}
	run := func(backlog []BacklogEntry) int {
		res, err := s.Schedule(context.Background(), Request{
			Backlog:   backlog,
			Durations: durations,
			StartDate: date(2026, time.October, 19),
			EndDate:   date(2026, time.October, 19),
		})
		require.NoError(t, err)
		return len(res.Bookings)
	}

	all := run(full)
	for skip := range full {
		subset := append(append([]BacklogEntry{}, full[:skip]...), full[skip+1:]...)
		assert.LessOrEqual(t, run(subset), all, "dropping %s scheduled more", full[skip].PatientName)
	}
}

func TestSchedule_WorkingWeek(t *testing.T) {
	s := newTestScheduler(3)
	req := Request{
		Backlog: backlogOf(40, "Infusion"),
		Durations: []DurationEntry{
			{ProcedureType: "Infusion", TurnAroundHours: 3},
		},
		StartDate: date(2026, time.October, 16),
		EndDate:   date(2026, time.October, 20),
	}

	res, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	assertScheduleInvariants(t, s, req, res)
	// 3 weekdays x 3 seats x 3 slots of 3 hours.
	assert.Len(t, res.Bookings, 27)
	assert.Len(t, res.Diagnostics.Unplaced, 13)
}

func TestSchedule_Canceled(t *testing.T) {
	s := newTestScheduler(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Schedule(ctx, Request{
		Backlog:   backlogOf(5, "Injection"),
		Durations: []DurationEntry{{ProcedureType: "Injection", TurnAroundHours: 1}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 23),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", ErrorKind(err))
}

type stubSolver struct {
	solve func(m *Model) (Solution, error)
}

func (s stubSolver) Solve(_ context.Context, m *Model) (Solution, error) {
	return s.solve(m)
}

func TestSchedule_SolverFailures(t *testing.T) {
	req := Request{
		Backlog:   backlogOf(2, "Infusion"),
		Durations: []DurationEntry{{ProcedureType: "Infusion", TurnAroundHours: 3}},
		StartDate: date(2026, time.October, 19),
		EndDate:   date(2026, time.October, 19),
	}

	t.Run("solver error", func(t *testing.T) {
		s := NewScheduler(DefaultOptions(), stubSolver{solve: func(*Model) (Solution, error) {
			return Solution{}, errors.New("boom")
		}})
		_, err := s.Schedule(context.Background(), req)
		assert.ErrorIs(t, err, ErrSolverFailure)
		assert.Equal(t, "solver_failure", ErrorKind(err))
	})

	t.Run("overlapping assignment", func(t *testing.T) {
		s := NewScheduler(DefaultOptions(), stubSolver{solve: func(m *Model) (Solution, error) {
			return Solution{Chosen: []int{m.Var(0, 0, 0, 0), m.Var(1, 0, 0, 1)}}, nil
		}})
		_, err := s.Schedule(context.Background(), req)
		assert.ErrorIs(t, err, ErrSolverFailure)
	})

	t.Run("infeasible means empty", func(t *testing.T) {
		s := NewScheduler(DefaultOptions(), stubSolver{solve: func(*Model) (Solution, error) {
			return Solution{}, nil
		}})
		res, err := s.Schedule(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, res.Bookings)
		assert.Len(t, res.Diagnostics.Unplaced, 2)
	})
}

func TestSchedule_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Seats = 0
	opts.DayStart = 20 * time.Hour
	_, err := NewScheduler(opts, nil).Schedule(context.Background(), Request{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 2)
}

func TestSchedule_WallClockAcrossDSTChange(t *testing.T) {
	testCases := []struct {
		name     string
		zone     string
		day      time.Time
		expected string
	}{
		// Clocks go forward at 02:00 on this Friday.
		{name: "Jerusalem spring forward", zone: "Asia/Jerusalem", day: date(2026, time.March, 27), expected: "2026-03-27 08:00 - 17:00"},
		// Clocks go back at 02:00 on this Sunday; Monday is a regular day.
		{name: "Day after fall back", zone: "Europe/London", day: date(2026, time.October, 26), expected: "2026-10-26 08:00 - 17:00"},
		// Midnight itself is skipped when Cairo springs forward on a Friday.
		{name: "Cairo skipped midnight", zone: "Africa/Cairo", day: date(2026, time.April, 24), expected: "2026-04-24 08:00 - 17:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := time.LoadLocation(tc.zone)
			require.NoError(t, err)

			opts := DefaultOptions()
			opts.Seats = 1
			opts.Location = loc
			s := NewScheduler(opts, nil)

			req := Request{
				Backlog:   []BacklogEntry{{PatientName: "Ada", ProcedureType: "Infusion"}},
				Durations: []DurationEntry{{ProcedureType: "Infusion", TurnAroundHours: 9}},
				StartDate: tc.day,
				EndDate:   tc.day,
			}
			res, err := s.Schedule(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, res.Bookings, 1)

			b := res.Bookings[0]
			assert.Equal(t, tc.expected, b.ScheduledTime)
			assert.Equal(t, 8, b.Start.In(loc).Hour())
			assert.Equal(t, 17, b.End.In(loc).Hour())
			assertScheduleInvariants(t, s, req, res)
		})
	}
}
