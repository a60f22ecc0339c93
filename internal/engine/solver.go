package engine

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Solution is the set of variables a solver switched on.
type Solution struct {
	Chosen  []int
	Optimal bool
}

// Solver maximizes the number of scheduled tasks in a model.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Solution, error)
}

// PackingSolver exploits the model's structure: every seat-day is an
// identical bin of Hours capacity, and a set of n tasks can be scheduled iff
// the n shortest can. It walks n down from the capacity bound, trying a
// greedy fill first and an exhaustive search second.
type PackingSolver struct {
	TimeBudget time.Duration
	NodeLimit  int
}

type packStatus int

const (
	packFound packStatus = iota
	packInfeasible
	packBudget
	packCanceled
)

// Solve returns the best assignment found. Optimal is set when every larger
// task count was proven infeasible. Context cancellation discards the search.
func (s *PackingSolver) Solve(ctx context.Context, m *Model) (Solution, error) {
	bins := m.Seats * m.Days
	if bins == 0 || len(m.Tasks) == 0 || m.Hours <= 0 {
		return Solution{Optimal: true}, nil
	}

	var items []int
	for i, t := range m.Tasks {
		if t.Duration >= 1 && t.Duration <= m.Hours {
			items = append(items, i)
		}
	}
	slices.SortStableFunc(items, func(a, b int) int {
		return cmp.Compare(m.Tasks[a].Duration, m.Tasks[b].Duration)
	})

	upper, used := 0, 0
	for _, i := range items {
		used += m.Tasks[i].Duration
		if used > bins*m.Hours {
			break
		}
		upper++
	}

	srch := &search{
		ctx:       ctx,
		model:     m,
		nodeLimit: s.NodeLimit,
	}
	if s.TimeBudget > 0 {
		srch.deadline = time.Now().Add(s.TimeBudget)
	}

	proven := true
	for n := upper; n > 0; n-- {
		if err := ctx.Err(); err != nil {
			return Solution{}, err
		}
		subset := items[:n]
		if binOf, ok := worstFit(m, subset); ok {
			return Solution{Chosen: layout(m, subset, binOf), Optimal: proven}, nil
		}
		binOf, status := srch.pack(subset)
		switch status {
		case packFound:
			return Solution{Chosen: layout(m, subset, spread(m, subset, binOf)), Optimal: proven}, nil
		case packBudget:
			proven = false
		case packCanceled:
			return Solution{}, ctx.Err()
		}
	}
	return Solution{Optimal: proven}, nil
}

// worstFit places tasks longest first on the least loaded seat of the
// earliest day that still has room. binOf is indexed like subset.
func worstFit(m *Model, subset []int) ([]int, bool) {
	order := make([]int, len(subset))
	for k := range order {
		order[k] = k
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(m.Tasks[subset[b]].Duration, m.Tasks[subset[a]].Duration)
	})

	loads := make([]int, m.Seats*m.Days)
	binOf := make([]int, len(subset))
	for _, k := range order {
		dur := m.Tasks[subset[k]].Duration
		placed := false
		for d := 0; d < m.Days && !placed; d++ {
			best := -1
			for j := 0; j < m.Seats; j++ {
				b := d*m.Seats + j
				if loads[b]+dur > m.Hours {
					continue
				}
				if best == -1 || loads[b] < loads[best] {
					best = b
				}
			}
			if best >= 0 {
				loads[best] += dur
				binOf[k] = best
				placed = true
			}
		}
		if !placed {
			return nil, false
		}
	}
	return binOf, true
}

type search struct {
	ctx       context.Context
	model     *Model
	deadline  time.Time
	nodeLimit int
	nodes     int

	items  []int // task indexes, longest first
	suffix []int // remaining duration from position p on
	loads  []int
	assign []int
	tried  [][]bool
}

// pack decides whether subset fits exactly. Bins with equal load are
// interchangeable, so only one of them is tried per level.
func (s *search) pack(subset []int) ([]int, packStatus) {
	if s.exhausted() {
		return nil, packBudget
	}
	m := s.model
	s.items = slices.Clone(subset)
	slices.SortStableFunc(s.items, func(a, b int) int {
		return cmp.Compare(m.Tasks[b].Duration, m.Tasks[a].Duration)
	})
	s.suffix = make([]int, len(s.items)+1)
	for p := len(s.items) - 1; p >= 0; p-- {
		s.suffix[p] = s.suffix[p+1] + m.Tasks[s.items[p]].Duration
	}
	s.loads = make([]int, m.Seats*m.Days)
	s.assign = make([]int, len(s.items))
	s.tried = make([][]bool, len(s.items))
	for p := range s.tried {
		s.tried[p] = make([]bool, m.Hours+1)
	}

	status := s.place(0)
	if status != packFound {
		return nil, status
	}

	// Map back to subset positions.
	pos := make(map[int]int, len(subset))
	for k, i := range subset {
		pos[i] = k
	}
	binOf := make([]int, len(subset))
	for p, i := range s.items {
		binOf[pos[i]] = s.assign[p]
	}
	return binOf, packFound
}

func (s *search) place(p int) packStatus {
	if p == len(s.items) {
		return packFound
	}
	s.nodes++
	if s.nodes&1023 == 0 && s.ctx.Err() != nil {
		return packCanceled
	}
	if s.exhausted() {
		return packBudget
	}

	m := s.model
	smallest := m.Tasks[s.items[len(s.items)-1]].Duration
	usable := 0
	for _, l := range s.loads {
		if free := m.Hours - l; free >= smallest {
			usable += free
		}
	}
	if usable < s.suffix[p] {
		return packInfeasible
	}

	dur := m.Tasks[s.items[p]].Duration
	tried := s.tried[p]
	clear(tried)
	for b, l := range s.loads {
		if l+dur > m.Hours || tried[l] {
			continue
		}
		tried[l] = true
		s.loads[b] += dur
		s.assign[p] = b
		if st := s.place(p + 1); st != packInfeasible {
			return st
		}
		s.loads[b] -= dur
	}
	return packInfeasible
}

func (s *search) exhausted() bool {
	if s.nodeLimit > 0 && s.nodes >= s.nodeLimit {
		return true
	}
	return !s.deadline.IsZero() && s.nodes&1023 == 0 && time.Now().After(s.deadline)
}

// spread renumbers bins so the fullest groups land on the earliest day,
// one per seat, before any later day is used.
func spread(m *Model, subset, binOf []int) []int {
	loads := make(map[int]int)
	for k, b := range binOf {
		loads[b] += m.Tasks[subset[k]].Duration
	}
	used := make([]int, 0, len(loads))
	for b := range loads {
		used = append(used, b)
	}
	slices.SortFunc(used, func(a, b int) int {
		if c := cmp.Compare(loads[b], loads[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	renumber := make(map[int]int, len(used))
	for g, b := range used {
		renumber[b] = g
	}
	out := make([]int, len(binOf))
	for k, b := range binOf {
		out[k] = renumber[b]
	}
	return out
}

// layout turns bin assignments into start variables. Tasks sharing a seat-day
// run back to back from slot 0 in backlog order.
func layout(m *Model, subset, binOf []int) []int {
	members := make(map[int][]int)
	for k, b := range binOf {
		members[b] = append(members[b], subset[k])
	}

	chosen := make([]int, 0, len(subset))
	for b, tasks := range members {
		slices.Sort(tasks)
		d, j := b/m.Seats, b%m.Seats
		h := 0
		for _, i := range tasks {
			chosen = append(chosen, m.Var(i, j, d, h))
			h += m.Tasks[i].Duration
		}
	}
	slices.Sort(chosen)
	return chosen
}
