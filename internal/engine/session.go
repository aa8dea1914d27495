package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/store"
)

// CreateSession creates a new upcoming race. Only one race may be upcoming
// or in progress at a time.
func (e *Engine) CreateSession(ctx context.Context) (*Session, error) {
	e.createMu.Lock()
	defer e.createMu.Unlock()

	active, err := e.store.GetActiveRace(ctx)
	switch {
	case err == nil:
		return nil, errorf(KindConflict, "race %s is still %s", active.ID, active.Status)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("get active race: %w", err)
	}

	now := e.now().UTC()
	race := &model.Race{
		ID:         model.NewIDAt(now),
		Status:     model.StatusUpcoming,
		Mode:       model.ModeSafe,
		DurationMS: e.cfg.RaceDuration.Milliseconds(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateRace(ctx, race); err != nil {
		return nil, fmt.Errorf("create race: %w", err)
	}
	e.logger.Info("race created", "race_id", race.ID)

	sess := &Session{Race: race, Drivers: []model.Driver{}, Stats: e.refreshStats(ctx, race)}
	e.publish(broadcast.RaceCreated, sess)
	e.publish(broadcast.NextRaceUpdate, sess)
	return sess, nil
}

// StartSession starts an upcoming race that has at least one driver and arms
// its timer.
func (e *Engine) StartSession(ctx context.Context, id string) (*Session, error) {
	unlock := e.lockRace(id)
	defer unlock()

	race, err := e.loadRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.ValidTransition(race.Status, model.StatusInProgress) {
		return nil, errorf(KindState, "race %s cannot be started while %s", id, race.Status)
	}

	drivers, err := e.store.GetDrivers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	if len(drivers) < model.MinDrivers {
		return nil, errorf(KindState, "race %s needs at least %d driver to start", id, model.MinDrivers)
	}

	start := e.now().UTC()
	status, mode := model.StatusInProgress, model.ModeSafe
	durationMS := e.cfg.RaceDuration.Milliseconds()
	race, err = e.store.UpdateRace(ctx, id, model.RaceUpdate{
		Status:     &status,
		Mode:       &mode,
		StartTime:  &start,
		DurationMS: &durationMS,
	})
	if err != nil {
		return nil, fmt.Errorf("start race: %w", err)
	}
	raceTransitions.WithLabelValues(status).Inc()
	e.logger.Info("race started", "race_id", id, "drivers", len(drivers), "duration_ms", durationMS)

	e.armTimer(race)

	sess := &Session{Race: race, Drivers: drivers, Stats: e.refreshStats(ctx, race)}
	e.publish(broadcast.RaceStarted, sess)
	e.publishFlag(race)
	e.publishTimer(race)
	e.publishNextRace(ctx)
	return sess, nil
}

// ChangeMode sets the track mode of a race in progress. Once a race is in
// finish mode its mode can no longer change.
func (e *Engine) ChangeMode(ctx context.Context, id, mode string) (*model.Race, error) {
	mode, err := model.ParseMode(mode)
	if err != nil {
		return nil, errorf(KindValidation, "%s", validationMessage(err))
	}

	unlock := e.lockRace(id)
	defer unlock()

	race, err := e.loadRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status != model.StatusInProgress {
		return nil, errorf(KindState, "race %s mode can only change while in progress, it is %s", id, race.Status)
	}
	if !model.ValidModeTransition(race.Mode, mode) {
		return nil, errorf(KindState, "race %s is in %s mode and cannot change to %s", id, race.Mode, mode)
	}

	race, err = e.store.UpdateRace(ctx, id, model.RaceUpdate{Mode: &mode})
	if err != nil {
		return nil, fmt.Errorf("change mode: %w", err)
	}
	e.logger.Info("race mode changed", "race_id", id, "mode", mode)

	stats := e.refreshStats(ctx, race)
	e.publish(broadcast.RaceModeChanged, map[string]any{
		"race_id": id,
		"mode":    mode,
		"race":    race,
		"stats":   stats,
	})
	e.publishFlag(race)
	return race, nil
}

// EndSession finishes a race in progress and returns its final standings.
func (e *Engine) EndSession(ctx context.Context, id string) (*Session, error) {
	unlock := e.lockRace(id)
	defer unlock()

	race, err := e.loadRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.ValidTransition(race.Status, model.StatusFinished) {
		return nil, errorf(KindState, "race %s cannot be ended while %s", id, race.Status)
	}

	end := e.now().UTC()
	status, mode := model.StatusFinished, model.ModeFinish
	race, err = e.store.UpdateRace(ctx, id, model.RaceUpdate{
		Status:  &status,
		Mode:    &mode,
		EndTime: &end,
	})
	if err != nil {
		return nil, fmt.Errorf("end race: %w", err)
	}
	// Only a finished race may lose its timer; a failed write leaves it armed.
	e.timers.cancel(id)
	raceTransitions.WithLabelValues(status).Inc()

	drivers, err := e.store.GetDrivers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	sess := &Session{Race: race, Drivers: drivers, Stats: e.refreshStats(ctx, race)}

	var laps int
	if sess.Stats != nil {
		laps = sess.Stats.TotalLaps
	}
	e.logger.Info("race ended", "race_id", id, "laps", laps)

	e.publish(broadcast.RaceEnded, sess)
	e.publishFlag(race)
	e.publishNextRace(ctx)
	return sess, nil
}

// DeleteSession removes a race with its drivers and laps, whatever its state.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	unlock := e.lockRace(id)
	defer unlock()

	race, err := e.loadRace(ctx, id)
	if err != nil {
		return err
	}

	e.timers.cancel(id)

	if err := e.store.DeleteRace(ctx, id); err != nil {
		if race.Status == model.StatusInProgress {
			e.armTimer(race)
		}
		if errors.Is(err, store.ErrNotFound) {
			return errorf(KindNotFound, "race %s not found", id)
		}
		return fmt.Errorf("delete race: %w", err)
	}
	e.cache.Invalidate(id)
	e.logger.Info("race deleted", "race_id", id)

	e.publish(broadcast.RaceDeleted, map[string]any{"race_id": id})
	e.publishNextRace(ctx)
	return nil
}

// validationMessage strips the generic model.ErrInvalid prefix.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), model.ErrInvalid.Error()+": ")
}
