package engine

import (
	"fmt"
	"strings"
)

// MismatchPolicy decides what happens to backlog rows with no duration entry.
type MismatchPolicy string

const (
	// MismatchDrop excludes unmatched rows and reports them in Diagnostics.
	MismatchDrop MismatchPolicy = "drop"
	// MismatchReject fails normalisation when any row is unmatched.
	MismatchReject MismatchPolicy = "reject"
)

// JoinMismatch is a backlog row whose procedure type has no duration entry.
type JoinMismatch struct {
	Row           int    `json:"row"`
	PatientName   string `json:"patient_name"`
	ProcedureType string `json:"procedure_type"`
}

// Normalize joins the backlog against the duration table by procedure type.
// Output order follows the backlog.
func Normalize(backlog []BacklogEntry, durations []DurationEntry, policy MismatchPolicy) ([]Task, []JoinMismatch, error) {
	verr := &ValidationError{}

	lookup := make(map[string]int, len(durations))
	for _, d := range durations {
		key := strings.TrimSpace(d.ProcedureType)
		if key == "" {
			verr.add("duration table has an entry with an empty procedure type")
			continue
		}
		if d.TurnAroundHours <= 0 {
			verr.add(fmt.Sprintf("procedure type %q has non-positive turn-around time %d", key, d.TurnAroundHours))
			continue
		}
		if prev, ok := lookup[key]; ok && prev != d.TurnAroundHours {
			verr.add(fmt.Sprintf("procedure type %q listed with conflicting turn-around times %d and %d", key, prev, d.TurnAroundHours))
			continue
		}
		lookup[key] = d.TurnAroundHours
	}

	tasks := make([]Task, 0, len(backlog))
	var excluded []JoinMismatch
	for row, entry := range backlog {
		key := strings.TrimSpace(entry.ProcedureType)
		hours, ok := lookup[key]
		if !ok {
			excluded = append(excluded, JoinMismatch{
				Row:           row,
				PatientName:   entry.PatientName,
				ProcedureType: entry.ProcedureType,
			})
			continue
		}
		tasks = append(tasks, Task{
			ID:            row,
			PatientName:   strings.TrimSpace(entry.PatientName),
			ProcedureType: key,
			Duration:      hours,
		})
	}

	if policy == MismatchReject {
		for _, m := range excluded {
			verr.add(fmt.Sprintf("row %d (%s): no duration for procedure type %q", m.Row, m.PatientName, m.ProcedureType))
		}
	}

	if verr.HasIssues() {
		return nil, excluded, verr
	}
	return tasks, excluded, nil
}
