package engine

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Request is one scheduling run's input snapshot.
type Request struct {
	Backlog   []BacklogEntry
	Durations []DurationEntry
	StartDate time.Time
	EndDate   time.Time
}

// Result is the outcome of a run. An empty Bookings slice is a valid result.
type Result struct {
	Bookings    []Booking   `json:"bookings"`
	Tasks       []Task      `json:"tasks"`
	Horizon     []time.Time `json:"horizon"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Scheduler runs normalize, horizon, build, solve and extract in order.
// It holds no state between runs.
type Scheduler struct {
	opts   Options
	solver Solver
}

// NewScheduler creates a scheduler. A nil solver selects PackingSolver.
func NewScheduler(opts Options, solver Solver) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if solver == nil {
		solver = &PackingSolver{TimeBudget: opts.TimeBudget, NodeLimit: opts.NodeLimit}
	}
	return &Scheduler{opts: opts, solver: solver}
}

// Options returns the scheduler's configuration.
func (s *Scheduler) Options() Options {
	return s.opts
}

// Schedule produces a conflict-free set of bookings for req.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if err := s.opts.validate(); err != nil {
		return nil, err
	}

	tasks, excluded, err := Normalize(req.Backlog, req.Durations, s.opts.MismatchPolicy)
	if err != nil {
		return nil, err
	}
	for _, m := range excluded {
		log.Printf("Excluding backlog row %d (%s): no duration for procedure type %q", m.Row, m.PatientName, m.ProcedureType)
	}

	res := &Result{
		Bookings: []Booking{},
		Tasks:    tasks,
		Horizon:  BuildHorizon(req.StartDate, req.EndDate, s.opts.Location),
	}
	res.Diagnostics.Excluded = excluded

	var schedulable []Task
	for _, t := range tasks {
		if t.Duration > s.opts.HoursPerDay {
			res.Diagnostics.Unschedulable = append(res.Diagnostics.Unschedulable, t)
			continue
		}
		schedulable = append(schedulable, t)
	}

	if len(res.Horizon) == 0 {
		log.Printf("Empty horizon between %s and %s; nothing scheduled", req.StartDate.Format(time.DateOnly), req.EndDate.Format(time.DateOnly))
		res.Diagnostics.EmptyHorizon = true
		res.Diagnostics.Unplaced = schedulable
		res.Diagnostics.Optimal = true
		return res, nil
	}

	model, err := BuildModel(ctx, tasks, s.opts.Seats, len(res.Horizon), s.opts.HoursPerDay, s.opts.MaxVariables)
	if err != nil {
		return nil, err
	}
	res.Diagnostics.Variables = model.NumVars()
	res.Diagnostics.Constraints = len(model.Constraints)

	sol, err := s.solver.Solve(ctx, model)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSolverFailure, err)
	}
	if violations := model.Check(sol.Chosen); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %d violated constraints, first %s", ErrSolverFailure, len(violations), violations[0])
	}

	res.Bookings = Extract(model, sol, res.Horizon, s.opts.DayStart)
	res.Diagnostics.Optimal = sol.Optimal

	placed := make(map[int]bool, len(res.Bookings))
	for _, b := range res.Bookings {
		placed[b.TaskID] = true
	}
	for _, t := range schedulable {
		if !placed[t.ID] {
			res.Diagnostics.Unplaced = append(res.Diagnostics.Unplaced, t)
		}
	}
	for _, v := range model.Deficits(sol.Chosen) {
		c := model.Constraints[v.Row]
		res.Diagnostics.Shortfalls = append(res.Diagnostics.Shortfalls, SlotShortfall{
			Date:     res.Horizon[c.Day],
			Hour:     int(c.Hour),
			Occupied: v.Activity,
			Floor:    v.RHS,
		})
	}

	log.Printf("Scheduled %d of %d tasks over %d days (%d variables, %d constraints, optimal=%t) in %s",
		len(res.Bookings), len(tasks), len(res.Horizon), res.Diagnostics.Variables, res.Diagnostics.Constraints,
		sol.Optimal, time.Since(started).Round(time.Millisecond))
	return res, nil
}

// Model builds the assignment model for req without solving it.
func (s *Scheduler) Model(ctx context.Context, req Request) (*Model, error) {
	if err := s.opts.validate(); err != nil {
		return nil, err
	}
	tasks, _, err := Normalize(req.Backlog, req.Durations, s.opts.MismatchPolicy)
	if err != nil {
		return nil, err
	}
	days := BuildHorizon(req.StartDate, req.EndDate, s.opts.Location)
	return BuildModel(ctx, tasks, s.opts.Seats, len(days), s.opts.HoursPerDay, s.opts.MaxVariables)
}
