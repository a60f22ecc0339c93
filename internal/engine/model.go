package engine

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ConstraintKind identifies which family a constraint row belongs to.
type ConstraintKind uint8

const (
	// NoSelfOverlap bounds a task's starts inside one duration-long window of a seat-day.
	NoSelfOverlap ConstraintKind = iota
	// SingleAssignment allows each task at most one start anywhere.
	SingleAssignment
	// SeatExclusivity allows at most one start per seat, day and hour.
	SeatExclusivity
	// SeatOccupancy allows at most one task covering a seat, day and hour.
	SeatOccupancy
	// StartWindow pins starts that would run past the end of the day to zero.
	StartWindow
	// MinUtilization asks for at least min(seats, tasks) busy seats per day and hour. Soft.
	MinUtilization
	// UnknownVariable is reported by Check for a chosen index outside the model. No row has it.
	UnknownVariable
)

var kindNames = [...]string{
	NoSelfOverlap:    "self",
	SingleAssignment: "once",
	SeatExclusivity:  "excl",
	SeatOccupancy:    "occ",
	StartWindow:      "window",
	MinUtilization:   "util",
	UnknownVariable:  "var",
}

func (k ConstraintKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind%d", k)
}

// Sense is the direction of a constraint row.
type Sense int8

const (
	LessEq Sense = iota
	GreaterEq
)

// Constraint is a row over binary variables, all with coefficient 1.
type Constraint struct {
	Kind  ConstraintKind
	Terms []int32
	Sense Sense
	RHS   int
	Soft  bool
	Day   int32
	Hour  int32
}

// Model is the binary assignment model over (task, seat, day, hour).
type Model struct {
	Tasks       []Task
	Seats       int
	Days        int
	Hours       int
	Constraints []Constraint
}

// NumVars is the size of the full cross product.
func (m *Model) NumVars() int {
	return len(m.Tasks) * m.Seats * m.Days * m.Hours
}

// Var returns the index of x[i, j, d, h].
func (m *Model) Var(i, j, d, h int) int {
	return ((i*m.Seats+j)*m.Days+d)*m.Hours + h
}

// Coords is the inverse of Var.
func (m *Model) Coords(v int) (i, j, d, h int) {
	h = v % m.Hours
	v /= m.Hours
	d = v % m.Days
	v /= m.Days
	j = v % m.Seats
	i = v / m.Seats
	return i, j, d, h
}

// Startable reports whether task i may start at hour h without spilling past the day.
func (m *Model) Startable(i, h int) bool {
	k := m.Tasks[i].Duration
	return k > 0 && h >= 0 && h+k <= m.Hours
}

// BuildModel assembles variables and constraint rows. Rows are built
// concurrently per task, per seat and per day, then concatenated in that order.
func BuildModel(ctx context.Context, tasks []Task, seats, days, hours, maxVars int) (*Model, error) {
	n := int64(len(tasks)) * int64(seats) * int64(days) * int64(hours)
	limit := int64(math.MaxInt32)
	if maxVars > 0 && int64(maxVars) < limit {
		limit = int64(maxVars)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: %d variables exceeds limit %d", ErrModelTooLarge, n, limit)
	}

	m := &Model{Tasks: tasks, Seats: seats, Days: days, Hours: hours}
	if n == 0 {
		return m, nil
	}

	taskRows := make([][]Constraint, len(tasks))
	seatRows := make([][]Constraint, seats)
	dayRows := make([][]Constraint, days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range tasks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			taskRows[i] = m.taskRows(i)
			return nil
		})
	}
	for j := 0; j < seats; j++ {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seatRows[j] = m.seatRows(j)
			return nil
		})
	}
	for d := 0; d < days; d++ {
		d := d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dayRows[d] = m.utilizationRows(d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, group := range [][][]Constraint{taskRows, seatRows, dayRows} {
		for _, rows := range group {
			total += len(rows)
		}
	}
	m.Constraints = make([]Constraint, 0, total)
	for _, group := range [][][]Constraint{taskRows, seatRows, dayRows} {
		for _, rows := range group {
			m.Constraints = append(m.Constraints, rows...)
		}
	}
	return m, nil
}

func (m *Model) taskRows(i int) []Constraint {
	k := m.Tasks[i].Duration
	var rows []Constraint

	// Tasks longer than the day get no window rows; StartWindow pins them to zero.
	if k > 0 && k <= m.Hours {
		for j := 0; j < m.Seats; j++ {
			for d := 0; d < m.Days; d++ {
				for h := 0; h+k <= m.Hours; h++ {
					terms := make([]int32, 0, k)
					for u := h; u < h+k; u++ {
						terms = append(terms, int32(m.Var(i, j, d, u)))
					}
					rows = append(rows, Constraint{Kind: NoSelfOverlap, Terms: terms, Sense: LessEq, RHS: 1, Day: int32(d), Hour: int32(h)})
				}
			}
		}
	}

	span := m.Seats * m.Days * m.Hours
	base := m.Var(i, 0, 0, 0)
	once := make([]int32, span)
	for v := range once {
		once[v] = int32(base + v)
	}
	rows = append(rows, Constraint{Kind: SingleAssignment, Terms: once, Sense: LessEq, RHS: 1, Day: -1, Hour: -1})

	var blocked []int32
	for h := 0; h < m.Hours; h++ {
		if m.Startable(i, h) {
			continue
		}
		for j := 0; j < m.Seats; j++ {
			for d := 0; d < m.Days; d++ {
				blocked = append(blocked, int32(m.Var(i, j, d, h)))
			}
		}
	}
	if len(blocked) > 0 {
		rows = append(rows, Constraint{Kind: StartWindow, Terms: blocked, Sense: LessEq, RHS: 0, Day: -1, Hour: -1})
	}
	return rows
}

func (m *Model) seatRows(j int) []Constraint {
	rows := make([]Constraint, 0, 2*m.Days*m.Hours)
	for d := 0; d < m.Days; d++ {
		for u := 0; u < m.Hours; u++ {
			excl := make([]int32, 0, len(m.Tasks))
			for i := range m.Tasks {
				excl = append(excl, int32(m.Var(i, j, d, u)))
			}
			rows = append(rows, Constraint{Kind: SeatExclusivity, Terms: excl, Sense: LessEq, RHS: 1, Day: int32(d), Hour: int32(u)})

			occ := m.coveringStarts(nil, j, d, u)
			if len(occ) > 0 {
				rows = append(rows, Constraint{Kind: SeatOccupancy, Terms: occ, Sense: LessEq, RHS: 1, Day: int32(d), Hour: int32(u)})
			}
		}
	}
	return rows
}

func (m *Model) utilizationRows(d int) []Constraint {
	floor := min(m.Seats, len(m.Tasks))
	if floor == 0 {
		return nil
	}
	rows := make([]Constraint, 0, m.Hours)
	for u := 0; u < m.Hours; u++ {
		var terms []int32
		for j := 0; j < m.Seats; j++ {
			terms = m.coveringStarts(terms, j, d, u)
		}
		rows = append(rows, Constraint{Kind: MinUtilization, Terms: terms, Sense: GreaterEq, RHS: floor, Soft: true, Day: int32(d), Hour: int32(u)})
	}
	return rows
}

// coveringStarts appends every feasible start on seat j, day d whose span covers hour u.
func (m *Model) coveringStarts(dst []int32, j, d, u int) []int32 {
	for i, t := range m.Tasks {
		for h := max(0, u-t.Duration+1); h <= u; h++ {
			if m.Startable(i, h) {
				dst = append(dst, int32(m.Var(i, j, d, h)))
			}
		}
	}
	return dst
}

// Violation is a row not satisfied by an assignment. For UnknownVariable,
// Row is -1, Activity holds the offending index and RHS the variable count.
type Violation struct {
	Row      int
	Kind     ConstraintKind
	Activity int
	RHS      int
}

func (v Violation) String() string {
	if v.Kind == UnknownVariable {
		return fmt.Sprintf("variable %d outside [0, %d)", v.Activity, v.RHS)
	}
	return fmt.Sprintf("%s row %d: activity %d vs rhs %d", v.Kind, v.Row, v.Activity, v.RHS)
}

// Check evaluates every hard row against the chosen variables.
func (m *Model) Check(chosen []int) []Violation {
	return m.evaluate(chosen, false)
}

// Deficits evaluates the soft rows only.
func (m *Model) Deficits(chosen []int) []Violation {
	return m.evaluate(chosen, true)
}

func (m *Model) evaluate(chosen []int, soft bool) []Violation {
	set := make([]bool, m.NumVars())
	var out []Violation
	for _, v := range chosen {
		if v < 0 || v >= len(set) {
			if !soft {
				out = append(out, Violation{Row: -1, Kind: UnknownVariable, Activity: v, RHS: len(set)})
			}
			continue
		}
		set[v] = true
	}

	for idx, c := range m.Constraints {
		if c.Soft != soft {
			continue
		}
		activity := 0
		for _, t := range c.Terms {
			if set[t] {
				activity++
			}
		}
		if (c.Sense == LessEq && activity > c.RHS) || (c.Sense == GreaterEq && activity < c.RHS) {
			out = append(out, Violation{Row: idx, Kind: c.Kind, Activity: activity, RHS: c.RHS})
		}
	}
	return out
}
