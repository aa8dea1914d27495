package broadcast

import (
	"time"

	"github.com/seantiz/racetrack/internal/model"
)

// Event names, as consumed by the browser terminals.
const (
	RaceCreated       = "raceCreated"
	RaceStarted       = "raceStarted"
	RaceEnded         = "raceEnded"
	RaceDeleted       = "raceDeleted"
	RaceModeChanged   = "raceModeChanged"
	RaceTimerUpdate   = "raceTimerUpdate"
	DriverAdded       = "driverAdded"
	DriverUpdated     = "driverUpdated"
	DriverRemoved     = "driverRemoved"
	LapRecorded       = "lapRecorded"
	FastestLapUpdate  = "fastestLapUpdate"
	LeaderboardUpdate = "leaderboardUpdate"
	NextRaceUpdate    = "nextRaceUpdate"
	FlagStatusUpdate  = "flagStatusUpdate"

	// Snapshot is sent once to each new subscriber with the current state.
	Snapshot = "snapshot"
)

// Flag colours shown on the flag display.
const (
	FlagGreen     = "green"
	FlagYellow    = "yellow"
	FlagRed       = "red"
	FlagChequered = "chequered"
)

// Event is a single published message.
type Event struct {
	Name    string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(name string, payload any)
}

// Multi publishes every event to each of its publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(name string, payload any) {
	for _, p := range m {
		p.Publish(name, payload)
	}
}

// FlagFor returns the flag colour for a race mode.
func FlagFor(mode string) string {
	switch mode {
	case model.ModeHazard:
		return FlagYellow
	case model.ModeDanger:
		return FlagRed
	case model.ModeFinish:
		return FlagChequered
	default:
		return FlagGreen
	}
}
