package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"procedure-scheduler-backend/internal/engine"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Column keys after normalisation.
const (
	colPatient    = "patientname"
	colProcedure  = "proceduretype"
	turnaroundKey = "turnaround"
)

// BookingHeader is the header row written by WriteBookings.
var BookingHeader = []string{"Seat Number", "Patient Name", "Procedure Type", "TurnAroundTime", "Scheduled Time"}

// NormalizeHeader lowercases a column name and strips everything but letters and digits,
// so "Procedure Type", "procedure_type" and "ProcedureType" compare equal.
func NormalizeHeader(raw string) string {
	s := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
	return nonAlnumRe.ReplaceAllString(s, "")
}

type table struct {
	header map[string]int
	rows   [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty table: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{header: make(map[string]int, len(head))}
	for i, name := range head {
		key := NormalizeHeader(name)
		if _, dup := t.header[key]; !dup {
			t.header[key] = i
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// column finds a column whose normalised name equals key, or starts with it when prefix is set.
func (t *table) column(key string, prefix bool) (int, bool) {
	if i, ok := t.header[key]; ok {
		return i, true
	}
	if !prefix {
		return 0, false
	}
	best := -1
	for name, i := range t.header {
		if strings.HasPrefix(name, key) && (best == -1 || i < best) {
			best = i
		}
	}
	return best, best >= 0
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadBacklog reads a backlog table with patient name and procedure type columns.
func ReadBacklog(r io.Reader) ([]engine.BacklogEntry, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	patient, ok := t.column(colPatient, false)
	if !ok {
		return nil, errors.New("backlog: missing Patient Name column")
	}
	procedure, ok := t.column(colProcedure, false)
	if !ok {
		return nil, errors.New("backlog: missing Procedure Type column")
	}

	entries := make([]engine.BacklogEntry, 0, len(t.rows))
	for _, rec := range t.rows {
		entries = append(entries, engine.BacklogEntry{
			PatientName:   cell(rec, patient),
			ProcedureType: cell(rec, procedure),
		})
	}
	return entries, nil
}

// ReadDurations reads a duration table. The duration column is any header
// starting with "turnaround", e.g. TurnAroundTime or Turn-Around-Time-in-hours.
func ReadDurations(r io.Reader) ([]engine.DurationEntry, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	procedure, ok := t.column(colProcedure, false)
	if !ok {
		return nil, errors.New("durations: missing ProcedureType column")
	}
	hours, ok := t.column(turnaroundKey, true)
	if !ok {
		return nil, errors.New("durations: missing TurnAroundTime column")
	}

	entries := make([]engine.DurationEntry, 0, len(t.rows))
	for n, rec := range t.rows {
		h, err := ParseHours(cell(rec, hours))
		if err != nil {
			return nil, fmt.Errorf("durations: row %d: %w", n+2, err)
		}
		entries = append(entries, engine.DurationEntry{
			ProcedureType:   cell(rec, procedure),
			TurnAroundHours: h,
		})
	}
	return entries, nil
}

// ParseHours accepts whole hours written as "2" or "2.0".
func ParseHours(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid turn-around time %q", raw)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("turn-around time %q is not a whole number of hours", raw)
	}
	return int(f), nil
}

// WriteBookings writes the schedule table in booking order.
func WriteBookings(w io.Writer, bookings []engine.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BookingHeader); err != nil {
		return err
	}
	for _, b := range bookings {
		rec := []string{
			strconv.Itoa(b.Seat),
			b.PatientName,
			b.ProcedureType,
			strconv.Itoa(b.TurnAroundTime),
			b.ScheduledTime,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
