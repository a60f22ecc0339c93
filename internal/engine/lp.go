package engine

import (
	"bufio"
	"fmt"
	"io"
)

const lpTermsPerLine = 8

// WriteLP writes the hard part of the model in CPLEX LP format so it can be
// handed to an external MILP solver. Soft utilisation rows are left out.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\\ procedure scheduling: %d tasks, %d seats, %d days, %d hours\n",
		len(m.Tasks), m.Seats, m.Days, m.Hours)
	bw.WriteString("Maximize\n obj:")
	n := m.NumVars()
	if n == 0 {
		bw.WriteString(" 0")
	}
	for v := 0; v < n; v++ {
		writeTerm(bw, m, v, v)
	}
	bw.WriteString("\nSubject To\n")

	for idx, c := range m.Constraints {
		if c.Soft || len(c.Terms) == 0 {
			continue
		}
		fmt.Fprintf(bw, " %s_%d:", c.Kind, idx)
		for k, t := range c.Terms {
			writeTerm(bw, m, int(t), k)
		}
		op := "<="
		if c.Sense == GreaterEq {
			op = ">="
		}
		fmt.Fprintf(bw, " %s %d\n", op, c.RHS)
	}

	bw.WriteString("Binary\n")
	for v := 0; v < n; v++ {
		fmt.Fprintf(bw, " %s\n", varName(m, v))
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerm(bw *bufio.Writer, m *Model, v, k int) {
	if k > 0 {
		if k%lpTermsPerLine == 0 {
			bw.WriteString("\n  ")
		}
		bw.WriteString(" +")
	}
	bw.WriteByte(' ')
	bw.WriteString(varName(m, v))
}

func varName(m *Model, v int) string {
	i, j, d, h := m.Coords(v)
	return fmt.Sprintf("x_%d_%d_%d_%d", i, j, d, h)
}
