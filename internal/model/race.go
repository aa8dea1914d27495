package model

import "time"

// Race status constants.
const (
	StatusUpcoming   = "upcoming"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
)

// Race mode (track flag) constants.
const (
	ModeSafe   = "safe"
	ModeHazard = "hazard"
	ModeDanger = "danger"
	ModeFinish = "finish"
)

// Modes lists every recognised race mode.
var Modes = []string{ModeSafe, ModeHazard, ModeDanger, ModeFinish}

// Driver limits per race.
const (
	MaxDrivers = 8
	MinDrivers = 1
)

// Planned race lengths.
const (
	DevelopmentRaceDuration = time.Minute
	ProductionRaceDuration  = 10 * time.Minute
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusUpcoming: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusFinished: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ValidModeTransition reports whether a running race may move from one mode to
// another. Safe, hazard and danger alternate freely; finish is terminal.
func ValidModeTransition(from, to string) bool {
	if from == ModeFinish || !IsMode(to) {
		return false
	}
	return IsMode(from)
}

// IsMode reports whether s is a recognised mode.
func IsMode(s string) bool {
	for _, m := range Modes {
		if m == s {
			return true
		}
	}
	return false
}

// Race is one timed karting heat.
type Race struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Mode       string     `json:"mode"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Deadline returns the wall-clock time at which a started race should end.
// ok is false if the race has not started.
func (r *Race) Deadline() (deadline time.Time, ok bool) {
	if r.StartTime == nil {
		return time.Time{}, false
	}
	return r.StartTime.Add(time.Duration(r.DurationMS) * time.Millisecond), true
}

// RaceUpdate carries the fields to change on a race. Nil fields are left
// untouched.
type RaceUpdate struct {
	Status     *string
	Mode       *string
	StartTime  *time.Time
	DurationMS *int64
	EndTime    *time.Time
}

// DriverUpdate carries the driver fields to change. Nil fields are left
// untouched.
type DriverUpdate struct {
	Name      *string
	CarNumber *int
}

// Driver is a participant registered to a car number within one race.
type Driver struct {
	ID        string    `json:"id"`
	RaceID    string    `json:"race_id"`
	Name      string    `json:"name"`
	CarNumber int       `json:"car_number"`
	CreatedAt time.Time `json:"created_at"`
}

// Lap is an immutable lap-line crossing for one car. Timestamp is the
// caller-supplied crossing time in Unix milliseconds.
type Lap struct {
	ID         int64     `json:"id"`
	RaceID     string    `json:"race_id"`
	CarNumber  int       `json:"car_number"`
	LapNumber  int       `json:"lap_number"`
	Timestamp  int64     `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
