package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/store"
)

// AddDriver registers a driver to an upcoming race. If carNumber is nil the
// lowest free car number is assigned.
func (e *Engine) AddDriver(ctx context.Context, raceID, name string, carNumber *int) (*model.Driver, *RaceStats, error) {
	unlock := e.lockRace(raceID)
	defer unlock()

	race, err := e.loadRace(ctx, raceID)
	if err != nil {
		return nil, nil, err
	}
	if race.Status != model.StatusUpcoming {
		return nil, nil, errorf(KindState, "drivers can only be added to an upcoming race, race %s is %s", raceID, race.Status)
	}

	drivers, err := e.store.GetDrivers(ctx, raceID)
	if err != nil {
		return nil, nil, fmt.Errorf("get drivers: %w", err)
	}
	if err := model.ValidateDriverCount(len(drivers) + 1); err != nil {
		return nil, nil, errorf(KindCapacity, "race %s is full: %s", raceID, validationMessage(err))
	}

	name, err = checkDriverName(drivers, raceID, name, "")
	if err != nil {
		return nil, nil, err
	}

	var car int
	if carNumber != nil {
		if err := checkCarNumber(drivers, raceID, *carNumber, ""); err != nil {
			return nil, nil, err
		}
		car = *carNumber
	} else {
		taken := make(map[int]bool, len(drivers))
		for _, d := range drivers {
			taken[d.CarNumber] = true
		}
		car = lowestFreeCar(taken)
		if car == 0 {
			return nil, nil, errorf(KindCapacity, "no car number available in race %s", raceID)
		}
	}

	now := e.now().UTC()
	d := &model.Driver{
		ID:        model.NewIDAt(now),
		RaceID:    raceID,
		Name:      name,
		CarNumber: car,
		CreatedAt: now,
	}
	if err := e.store.AddDriver(ctx, d); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, errorf(KindConflict, "driver %q or car number %d is already taken in race %s", name, car, raceID)
		}
		return nil, nil, fmt.Errorf("add driver: %w", err)
	}
	e.logger.Info("driver added", "race_id", raceID, "driver_id", d.ID, "car_number", car)

	stats := e.refreshStats(ctx, race)
	e.publish(broadcast.DriverAdded, map[string]any{
		"race_id": raceID,
		"driver":  d,
		"stats":   stats,
	})
	e.publishNextRace(ctx)
	return d, stats, nil
}

// UpdateDriver renames a driver of an upcoming race or moves them to another
// car. Nil arguments leave the field unchanged. The same rules as AddDriver
// apply, ignoring the driver being edited.
func (e *Engine) UpdateDriver(ctx context.Context, raceID, driverID string, name *string, carNumber *int) (*model.Driver, *RaceStats, error) {
	unlock := e.lockRace(raceID)
	defer unlock()

	race, err := e.loadRace(ctx, raceID)
	if err != nil {
		return nil, nil, err
	}
	if race.Status != model.StatusUpcoming {
		return nil, nil, errorf(KindState, "drivers can only be edited in an upcoming race, race %s is %s", raceID, race.Status)
	}

	drivers, err := e.store.GetDrivers(ctx, raceID)
	if err != nil {
		return nil, nil, fmt.Errorf("get drivers: %w", err)
	}
	if !slices.ContainsFunc(drivers, func(d model.Driver) bool { return d.ID == driverID }) {
		return nil, nil, errorf(KindNotFound, "driver %s not found in race %s", driverID, raceID)
	}

	var u model.DriverUpdate
	if name != nil {
		n, err := checkDriverName(drivers, raceID, *name, driverID)
		if err != nil {
			return nil, nil, err
		}
		u.Name = &n
	}
	if carNumber != nil {
		if err := checkCarNumber(drivers, raceID, *carNumber, driverID); err != nil {
			return nil, nil, err
		}
		u.CarNumber = carNumber
	}

	d, err := e.store.UpdateDriver(ctx, raceID, driverID, u)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, errorf(KindNotFound, "driver %s not found in race %s", driverID, raceID)
		case errors.Is(err, store.ErrConflict):
			return nil, nil, errorf(KindConflict, "driver name or car number is already taken in race %s", raceID)
		}
		return nil, nil, fmt.Errorf("update driver: %w", err)
	}
	e.logger.Info("driver updated", "race_id", raceID, "driver_id", driverID, "car_number", d.CarNumber)

	stats := e.refreshStats(ctx, race)
	e.publish(broadcast.DriverUpdated, map[string]any{
		"race_id": raceID,
		"driver":  d,
		"stats":   stats,
	})
	e.publishNextRace(ctx)
	return d, stats, nil
}

// checkDriverName normalizes name and rejects it if another driver of the
// race, other than exceptID, already uses it in any letter case.
func checkDriverName(drivers []model.Driver, raceID, name, exceptID string) (string, error) {
	name, err := model.NormalizeDriverName(name)
	if err != nil {
		return "", errorf(KindValidation, "%s", validationMessage(err))
	}
	for _, d := range drivers {
		if d.ID != exceptID && strings.EqualFold(d.Name, name) {
			return "", errorf(KindConflict, "driver %q is already in race %s", name, raceID)
		}
	}
	return name, nil
}

// checkCarNumber rejects an out of range car number or one held by a driver
// other than exceptID.
func checkCarNumber(drivers []model.Driver, raceID string, car int, exceptID string) error {
	if err := model.ValidateCarNumber(car); err != nil {
		return errorf(KindValidation, "%s", validationMessage(err))
	}
	for _, d := range drivers {
		if d.ID != exceptID && d.CarNumber == car {
			return errorf(KindConflict, "car number %d is already taken in race %s", car, raceID)
		}
	}
	return nil
}

// lowestFreeCar returns the smallest car number not in taken, or 0 if every
// number is in use.
func lowestFreeCar(taken map[int]bool) int {
	for n := 1; n <= model.MaxDrivers; n++ {
		if !taken[n] {
			return n
		}
	}
	return 0
}

// RemoveDriver unregisters a driver from an upcoming race. The freed car
// number becomes available again.
func (e *Engine) RemoveDriver(ctx context.Context, raceID, driverID string) (*RaceStats, error) {
	unlock := e.lockRace(raceID)
	defer unlock()

	race, err := e.loadRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race.Status != model.StatusUpcoming {
		return nil, errorf(KindState, "drivers can only be removed from an upcoming race, race %s is %s", raceID, race.Status)
	}

	if err := e.store.RemoveDriver(ctx, raceID, driverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errorf(KindNotFound, "driver %s not found in race %s", driverID, raceID)
		}
		return nil, fmt.Errorf("remove driver: %w", err)
	}
	e.logger.Info("driver removed", "race_id", raceID, "driver_id", driverID)

	stats := e.refreshStats(ctx, race)
	e.publish(broadcast.DriverRemoved, map[string]any{
		"race_id":   raceID,
		"driver_id": driverID,
		"stats":     stats,
	})
	e.publishNextRace(ctx)
	return stats, nil
}
