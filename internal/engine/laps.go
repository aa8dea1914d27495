package engine

import (
	"context"
	"fmt"

	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/model"
)

// RecordLap records a line crossing for carNumber at timestamp (Unix ms).
// The first crossing of a car opens its first lap with no duration; every
// later crossing is timed against the previous one.
func (e *Engine) RecordLap(ctx context.Context, raceID string, carNumber int, timestamp int64) (*LapResult, error) {
	unlock := e.lockRace(raceID)
	defer unlock()

	race, err := e.loadRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race.Status != model.StatusInProgress {
		return nil, errorf(KindState, "laps can only be recorded while the race is in progress, race %s is %s", raceID, race.Status)
	}
	if err := model.ValidateTimestamp(timestamp); err != nil {
		return nil, errorf(KindValidation, "%s", validationMessage(err))
	}

	if err := model.ValidateCarNumber(carNumber); err != nil {
		return nil, errorf(KindValidation, "%s", validationMessage(err))
	}

	drivers, err := e.store.GetDrivers(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	var registered bool
	for _, d := range drivers {
		if d.CarNumber == carNumber {
			registered = true
			break
		}
	}
	if !registered {
		return nil, errorf(KindNotFound, "car %d is not registered in race %s", carNumber, raceID)
	}

	prior, err := e.store.GetLapsForCar(ctx, raceID, carNumber)
	if err != nil {
		return nil, fmt.Errorf("get laps for car: %w", err)
	}
	lap := model.Lap{
		RaceID:    raceID,
		CarNumber: carNumber,
		LapNumber: len(prior) + 1,
		Timestamp: timestamp,
		CreatedAt: e.now().UTC(),
	}
	if len(prior) > 0 {
		last := prior[len(prior)-1].Timestamp
		if timestamp < last {
			return nil, errorf(KindValidation, "timestamp %d is earlier than the previous lap of car %d (%d)", timestamp, carNumber, last)
		}
		lap.DurationMS = timestamp - last
	}

	if err := e.store.AppendLap(ctx, &lap); err != nil {
		return nil, fmt.Errorf("append lap: %w", err)
	}
	lapsRecorded.Inc()
	e.logger.Debug("lap recorded", "race_id", raceID, "car_number", carNumber, "lap", lap.LapNumber, "duration_ms", lap.DurationMS)

	res := &LapResult{Lap: lap, Stats: e.refreshStats(ctx, race), Leaderboard: []LeaderboardRow{}}
	if res.Stats != nil {
		res.Leaderboard = Leaderboard(res.Stats)
	}

	e.publish(broadcast.LapRecorded, res)
	e.publish(broadcast.LeaderboardUpdate, map[string]any{
		"race_id":     raceID,
		"leaderboard": res.Leaderboard,
	})
	// Ties keep the earlier lap, so a new lap only takes the record outright.
	if f := fastestOf(res.Stats); f != nil && f.CarNumber == carNumber && f.LapNumber == lap.LapNumber {
		e.publish(broadcast.FastestLapUpdate, map[string]any{
			"race_id":     raceID,
			"fastest_lap": f,
		})
	}
	return res, nil
}

func fastestOf(s *RaceStats) *FastestLap {
	if s == nil {
		return nil
	}
	return s.FastestLap
}
