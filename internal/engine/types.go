package engine

import "time"

// BacklogEntry is one row of the procedure backlog.
type BacklogEntry struct {
	PatientName   string `json:"patient_name" binding:"required"`
	ProcedureType string `json:"procedure_type" binding:"required"`
}

// DurationEntry maps a procedure type to the hours it occupies a seat.
type DurationEntry struct {
	ProcedureType   string `json:"procedure_type" binding:"required"`
	TurnAroundHours int    `json:"turn_around_hours"`
}

// Task is one procedure instance to be scheduled. ID is the backlog row index.
type Task struct {
	ID            int    `json:"id"`
	PatientName   string `json:"patient_name"`
	ProcedureType string `json:"procedure_type"`
	Duration      int    `json:"duration"`
}

// Booking is a task placed on a seat at a concrete time.
type Booking struct {
	TaskID         int       `json:"task_id"`
	Seat           int       `json:"seat_number"`
	PatientName    string    `json:"patient_name"`
	ProcedureType  string    `json:"procedure_type"`
	TurnAroundTime int       `json:"turn_around_time"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ScheduledTime  string    `json:"scheduled_time"`
}

// Options holds the engine's tunable constants.
type Options struct {
	Seats          int
	HoursPerDay    int
	DayStart       time.Duration // offset of slot 0 from midnight
	Location       *time.Location
	MismatchPolicy MismatchPolicy
	TimeBudget     time.Duration
	NodeLimit      int
	MaxVariables   int
}

// DefaultOptions returns 10 seats, 9 hourly slots a day starting at 08:00.
func DefaultOptions() Options {
	return Options{
		Seats:          10,
		HoursPerDay:    9,
		DayStart:       8 * time.Hour,
		Location:       time.UTC,
		MismatchPolicy: MismatchDrop,
		TimeBudget:     30 * time.Second,
		NodeLimit:      2_000_000,
		MaxVariables:   5_000_000,
	}
}

func (o Options) validate() error {
	verr := &ValidationError{}
	if o.Seats <= 0 {
		verr.add("seats must be positive")
	}
	if o.HoursPerDay <= 0 {
		verr.add("hours per day must be positive")
	}
	if o.DayStart < 0 || o.DayStart+time.Duration(o.HoursPerDay)*time.Hour > 24*time.Hour {
		verr.add("working day must fit between 00:00 and 24:00")
	}
	switch o.MismatchPolicy {
	case MismatchDrop, MismatchReject:
	default:
		verr.add("unknown mismatch policy " + string(o.MismatchPolicy))
	}
	if verr.HasIssues() {
		return verr
	}
	return nil
}

// SlotShortfall records an hour where fewer seats were busy than the utilisation floor.
type SlotShortfall struct {
	Date     time.Time `json:"date"`
	Hour     int       `json:"hour"`
	Occupied int       `json:"occupied"`
	Floor    int       `json:"floor"`
}

// Diagnostics describes everything that did not make it into the schedule.
type Diagnostics struct {
	Excluded      []JoinMismatch  `json:"excluded,omitempty"`
	Unschedulable []Task          `json:"unschedulable,omitempty"`
	Unplaced      []Task          `json:"unplaced,omitempty"`
	EmptyHorizon  bool            `json:"empty_horizon"`
	Shortfalls    []SlotShortfall `json:"shortfalls,omitempty"`
	Optimal       bool            `json:"optimal"`
	Variables     int             `json:"variables"`
	Constraints   int             `json:"constraints"`
}
