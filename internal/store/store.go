package store

import (
	"context"
	"errors"

	"github.com/seantiz/racetrack/internal/model"
)

var (
	// ErrNotFound is returned when a race or driver does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Store defines the persistence operations for race sessions.
type Store interface {
	CreateRace(ctx context.Context, r *model.Race) error
	GetRace(ctx context.Context, id string) (*model.Race, error)
	GetActiveRace(ctx context.Context) (*model.Race, error)
	ListRaces(ctx context.Context, status string, limit, offset int) ([]*model.Race, int, error)
	UpdateRace(ctx context.Context, id string, u model.RaceUpdate) (*model.Race, error)
	DeleteRace(ctx context.Context, id string) error

	AddDriver(ctx context.Context, d *model.Driver) error
	UpdateDriver(ctx context.Context, raceID, driverID string, u model.DriverUpdate) (*model.Driver, error)
	RemoveDriver(ctx context.Context, raceID, driverID string) error
	GetDrivers(ctx context.Context, raceID string) ([]model.Driver, error)

	AppendLap(ctx context.Context, l *model.Lap) error
	GetLaps(ctx context.Context, raceID string) ([]model.Lap, error)
	GetLapsForCar(ctx context.Context, raceID string, carNumber int) ([]model.Lap, error)

	Close() error
}
