package engine

import (
	"math"
	"sort"
	"time"

	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/timefmt"
)

// Driver activity states.
const (
	DriverNotStarted = "NOT_STARTED"
	DriverActive     = "ACTIVE"
	DriverInactive   = "INACTIVE"
)

// DefaultInactiveAfter is how long a driver may go without crossing the line
// before being reported inactive.
const DefaultInactiveAfter = 60 * time.Second

// LapTime is a single timed lap of one driver.
type LapTime struct {
	LapNumber int   `json:"lap_number"`
	TimeMS    int64 `json:"time_ms"`
	Timestamp int64 `json:"timestamp"`
}

// Progression counts lap-over-lap improvements and deteriorations.
type Progression struct {
	Improvement   int `json:"improvement"`
	Deterioration int `json:"deterioration"`
}

// DriverStats holds the standings of one driver. Pointer fields are nil
// until enough valid laps exist to compute them.
type DriverStats struct {
	DriverID         string      `json:"driver_id"`
	Name             string      `json:"name"`
	CarNumber        int         `json:"car_number"`
	Position         int         `json:"position"`
	TotalLaps        int         `json:"total_laps"`
	FastestLap       *LapTime    `json:"fastest_lap"`
	AverageLapMS     *float64    `json:"average_lap_ms"`
	LastLapMS        *int64      `json:"last_lap_ms"`
	LapTimes         []LapTime   `json:"lap_times"`
	Consistency      *float64    `json:"consistency"`
	ConsistencyScore *int        `json:"consistency_score"`
	Status           string      `json:"status"`
	Progression      Progression `json:"progression"`
}

// FastestLap identifies the race-wide fastest lap.
type FastestLap struct {
	DriverName string `json:"driver_name"`
	CarNumber  int    `json:"car_number"`
	TimeMS     int64  `json:"time_ms"`
	LapNumber  int    `json:"lap_number"`
}

// ProgressStats summarises race progress.
type ProgressStats struct {
	CompletedLaps int `json:"completed_laps"`
	Active        int `json:"active"`
	Inactive      int `json:"inactive"`
}

// RaceStats is the derived standings of a race at one point in time.
type RaceStats struct {
	RaceID       string        `json:"race_id"`
	Status       string        `json:"status"`
	Mode         string        `json:"mode"`
	StartTime    *time.Time    `json:"start_time,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
	TotalLaps    int           `json:"total_laps"`
	Participants int           `json:"participants"`
	FastestLap   *FastestLap   `json:"fastest_lap"`
	AverageLapMS *float64      `json:"average_lap_ms"`
	Drivers      []DriverStats `json:"drivers"`
	Progress     ProgressStats `json:"progress"`
	ComputedAt   time.Time     `json:"computed_at"`
}

// ComputeStats derives the standings of race from its drivers and laps. A
// lap counts towards timing only if its duration is positive; every lap
// counts towards the lap total. Drivers are returned in ranking order.
func ComputeStats(race *model.Race, drivers []model.Driver, laps []model.Lap, now time.Time, inactiveAfter time.Duration) *RaceStats {
	byCar := make(map[int][]model.Lap, len(drivers))
	for _, l := range laps {
		byCar[l.CarNumber] = append(byCar[l.CarNumber], l)
	}

	ordered := make([]model.Driver, len(drivers))
	copy(ordered, drivers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CarNumber < ordered[j].CarNumber })

	rs := &RaceStats{
		RaceID:       race.ID,
		Status:       race.Status,
		Mode:         race.Mode,
		StartTime:    race.StartTime,
		DurationMS:   race.DurationMS,
		Participants: len(drivers),
		Drivers:      make([]DriverStats, 0, len(drivers)),
		ComputedAt:   now,
	}

	var (
		validSum   int64
		validCount int
		bestTS     int64
	)
	for _, d := range ordered {
		carLaps := byCar[d.CarNumber]
		sort.SliceStable(carLaps, func(i, j int) bool {
			if carLaps[i].Timestamp != carLaps[j].Timestamp {
				return carLaps[i].Timestamp < carLaps[j].Timestamp
			}
			return carLaps[i].LapNumber < carLaps[j].LapNumber
		})

		ds := driverStats(d, carLaps, now, inactiveAfter)
		rs.TotalLaps += ds.TotalLaps
		for _, lt := range ds.LapTimes {
			validSum += lt.TimeMS
			validCount++
		}

		if f := ds.FastestLap; f != nil {
			if rs.FastestLap == nil || f.TimeMS < rs.FastestLap.TimeMS ||
				(f.TimeMS == rs.FastestLap.TimeMS && f.Timestamp < bestTS) {
				rs.FastestLap = &FastestLap{
					DriverName: d.Name,
					CarNumber:  d.CarNumber,
					TimeMS:     f.TimeMS,
					LapNumber:  f.LapNumber,
				}
				bestTS = f.Timestamp
			}
		}

		switch ds.Status {
		case DriverActive:
			rs.Progress.Active++
		case DriverInactive:
			rs.Progress.Inactive++
		}
		rs.Drivers = append(rs.Drivers, ds)
	}
	rs.Progress.CompletedLaps = rs.TotalLaps

	if validCount > 0 {
		avg := float64(validSum) / float64(validCount)
		rs.AverageLapMS = &avg
	}

	scoreConsistency(rs.Drivers)
	rank(rs.Drivers)
	return rs
}

// driverStats computes the per-driver figures from laps sorted by timestamp.
func driverStats(d model.Driver, laps []model.Lap, now time.Time, inactiveAfter time.Duration) DriverStats {
	ds := DriverStats{
		DriverID:  d.ID,
		Name:      d.Name,
		CarNumber: d.CarNumber,
		TotalLaps: len(laps),
		LapTimes:  []LapTime{},
		Status:    DriverNotStarted,
	}
	if len(laps) == 0 {
		return ds
	}

	last := laps[len(laps)-1]
	if now.Sub(time.UnixMilli(last.Timestamp)) > inactiveAfter {
		ds.Status = DriverInactive
	} else {
		ds.Status = DriverActive
	}

	var sum int64
	for _, l := range laps {
		if l.DurationMS <= 0 {
			continue
		}
		lt := LapTime{LapNumber: l.LapNumber, TimeMS: l.DurationMS, Timestamp: l.Timestamp}
		if ds.FastestLap == nil || lt.TimeMS < ds.FastestLap.TimeMS {
			f := lt
			ds.FastestLap = &f
		}
		if n := len(ds.LapTimes); n > 0 {
			prev := ds.LapTimes[n-1].TimeMS
			switch {
			case lt.TimeMS < prev:
				ds.Progression.Improvement++
			case lt.TimeMS > prev:
				ds.Progression.Deterioration++
			}
		}
		ds.LapTimes = append(ds.LapTimes, lt)
		sum += lt.TimeMS
	}

	n := len(ds.LapTimes)
	if n == 0 {
		return ds
	}
	avg := float64(sum) / float64(n)
	ds.AverageLapMS = &avg
	lastMS := ds.LapTimes[n-1].TimeMS
	ds.LastLapMS = &lastMS

	if n >= 2 {
		var sq float64
		for _, lt := range ds.LapTimes {
			diff := float64(lt.TimeMS) - avg
			sq += diff * diff
		}
		sd := math.Sqrt(sq / float64(n-1))
		ds.Consistency = &sd
	}
	return ds
}

// scoreConsistency rates each driver 0-100 against the least consistent
// driver in the race.
func scoreConsistency(drivers []DriverStats) {
	var worst float64
	for _, d := range drivers {
		if d.Consistency != nil && *d.Consistency > worst {
			worst = *d.Consistency
		}
	}
	for i := range drivers {
		c := drivers[i].Consistency
		if c == nil {
			continue
		}
		score := 100
		if worst > 0 {
			score = int(math.Round(100 * (1 - *c/worst)))
		}
		drivers[i].ConsistencyScore = &score
	}
}

// rank orders drivers by laps completed, then fastest lap, and assigns
// positions. Drivers without a timed lap come after those with one; the
// incoming car-number order breaks remaining ties.
func rank(drivers []DriverStats) {
	sort.SliceStable(drivers, func(i, j int) bool {
		a, b := drivers[i], drivers[j]
		if a.TotalLaps != b.TotalLaps {
			return a.TotalLaps > b.TotalLaps
		}
		switch {
		case a.FastestLap == nil:
			return false
		case b.FastestLap == nil:
			return true
		}
		return a.FastestLap.TimeMS < b.FastestLap.TimeMS
	})
	for i := range drivers {
		drivers[i].Position = i + 1
	}
}

// LeaderboardRow is one line of the leaderboard shown on displays.
type LeaderboardRow struct {
	Position     int      `json:"position"`
	CarNumber    int      `json:"car_number"`
	DriverName   string   `json:"driver_name"`
	TotalLaps    int      `json:"total_laps"`
	BestLapMS    *int64   `json:"best_lap_ms"`
	AverageLapMS *float64 `json:"average_lap_ms"`
	BestLap      string   `json:"best_lap,omitempty"`
	AverageLap   string   `json:"average_lap,omitempty"`
}

// Leaderboard projects stats into display rows in ranking order.
func Leaderboard(stats *RaceStats) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(stats.Drivers))
	for _, d := range stats.Drivers {
		row := LeaderboardRow{
			Position:     d.Position,
			CarNumber:    d.CarNumber,
			DriverName:   d.Name,
			TotalLaps:    d.TotalLaps,
			AverageLapMS: d.AverageLapMS,
		}
		if d.FastestLap != nil {
			best := d.FastestLap.TimeMS
			row.BestLapMS = &best
			row.BestLap = timefmt.FormatLapTime(best)
		}
		if d.AverageLapMS != nil {
			row.AverageLap = timefmt.FormatLapTime(int64(math.Round(*d.AverageLapMS)))
		}
		rows = append(rows, row)
	}
	return rows
}
