package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/store"
)

// Paging limits for ListSessions.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// session assembles a Session for race, including stats if withStats is set.
func (e *Engine) session(ctx context.Context, race *model.Race, withStats bool) (*Session, error) {
	drivers, err := e.store.GetDrivers(ctx, race.ID)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	sess := &Session{Race: race, Drivers: drivers}
	if withStats {
		if sess.Stats, err = e.stats(ctx, race); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Current returns the active race, upcoming or in progress.
func (e *Engine) Current(ctx context.Context) (*Session, error) {
	race, err := e.store.GetActiveRace(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errorf(KindNotFound, "no active race")
	}
	if err != nil {
		return nil, fmt.Errorf("get active race: %w", err)
	}
	return e.session(ctx, race, true)
}

// NextRace returns the upcoming race waiting to be started.
func (e *Engine) NextRace(ctx context.Context) (*Session, error) {
	race, err := e.store.GetActiveRace(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errorf(KindNotFound, "no upcoming race")
	}
	if err != nil {
		return nil, fmt.Errorf("get active race: %w", err)
	}
	if race.Status != model.StatusUpcoming {
		return nil, errorf(KindNotFound, "no upcoming race")
	}
	return e.session(ctx, race, false)
}

// GetSession returns a race with its drivers and stats.
func (e *Engine) GetSession(ctx context.Context, id string) (*Session, error) {
	race, err := e.loadRace(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.session(ctx, race, true)
}

// ListSessions returns a page of races, newest first, optionally filtered by
// status, and the total number of races matching the filter.
func (e *Engine) ListSessions(ctx context.Context, status string, limit, offset int, withStats bool) ([]*Session, int, error) {
	switch status {
	case "", model.StatusUpcoming, model.StatusInProgress, model.StatusFinished:
	default:
		return nil, 0, errorf(KindValidation, "unknown race status %q", status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	races, total, err := e.store.ListRaces(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list races: %w", err)
	}

	sessions := make([]*Session, 0, len(races))
	for _, r := range races {
		sess, err := e.session(ctx, r, withStats)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, nil
}

// Drivers returns the drivers of a race ordered by car number.
func (e *Engine) Drivers(ctx context.Context, raceID string) ([]model.Driver, error) {
	if _, err := e.loadRace(ctx, raceID); err != nil {
		return nil, err
	}
	drivers, err := e.store.GetDrivers(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	return drivers, nil
}

// Laps returns every lap of a race.
func (e *Engine) Laps(ctx context.Context, raceID string) ([]model.Lap, error) {
	if _, err := e.loadRace(ctx, raceID); err != nil {
		return nil, err
	}
	laps, err := e.store.GetLaps(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("get laps: %w", err)
	}
	return laps, nil
}

// LapsForCar returns the laps of one car in crossing order.
func (e *Engine) LapsForCar(ctx context.Context, raceID string, carNumber int) ([]model.Lap, error) {
	if err := model.ValidateCarNumber(carNumber); err != nil {
		return nil, errorf(KindValidation, "%s", validationMessage(err))
	}
	if _, err := e.loadRace(ctx, raceID); err != nil {
		return nil, err
	}
	laps, err := e.store.GetLapsForCar(ctx, raceID, carNumber)
	if err != nil {
		return nil, fmt.Errorf("get laps for car: %w", err)
	}
	return laps, nil
}

// Stats returns the current standings of a race.
func (e *Engine) Stats(ctx context.Context, raceID string) (*RaceStats, error) {
	race, err := e.loadRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return e.stats(ctx, race)
}

// Leaderboard returns the display rows of a race in ranking order.
func (e *Engine) Leaderboard(ctx context.Context, raceID string) ([]LeaderboardRow, error) {
	s, err := e.Stats(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return Leaderboard(s), nil
}
