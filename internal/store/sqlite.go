package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/seantiz/racetrack/internal/model"
)

const createRacesTable = `
CREATE TABLE IF NOT EXISTS races (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL CHECK(status IN ('upcoming', 'in_progress', 'finished')),
    mode        TEXT NOT NULL CHECK(mode IN ('safe', 'hazard', 'danger', 'finish')),
    start_time  DATETIME,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    end_time    DATETIME,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
)`

const createDriversTable = `
CREATE TABLE IF NOT EXISTS drivers (
    id         TEXT PRIMARY KEY,
    race_id    TEXT NOT NULL REFERENCES races(id) ON DELETE CASCADE,
    name       TEXT NOT NULL COLLATE NOCASE,
    car_number INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE(race_id, name),
    UNIQUE(race_id, car_number)
)`

const createLapTimesTable = `
CREATE TABLE IF NOT EXISTS lap_times (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    race_id     TEXT NOT NULL REFERENCES races(id) ON DELETE CASCADE,
    car_number  INTEGER NOT NULL,
    lap_number  INTEGER NOT NULL,
    timestamp   INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at  DATETIME NOT NULL,
    UNIQUE(race_id, car_number, lap_number)
)`

const createLapTimesIndex = `
CREATE INDEX IF NOT EXISTS idx_lap_times_race_car_ts
    ON lap_times (race_id, car_number, timestamp)`

var migrations = []string{
	createRacesTable,
	createDriversTable,
	createLapTimesTable,
	createLapTimesIndex,
}

const raceColumns = `id, status, mode, start_time, duration_ms, end_time, created_at, updated_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" gets its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRace inserts a new race record.
func (s *SQLiteStore) CreateRace(ctx context.Context, r *model.Race) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO races (`+raceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Mode, r.StartTime, r.DurationMS, r.EndTime, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert race: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRace(row rowScanner) (*model.Race, error) {
	r := &model.Race{}
	err := row.Scan(
		&r.ID, &r.Status, &r.Mode, &r.StartTime, &r.DurationMS, &r.EndTime, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRace retrieves a race by ID.
func (s *SQLiteStore) GetRace(ctx context.Context, id string) (*model.Race, error) {
	r, err := scanRace(s.db.QueryRowContext(ctx,
		`SELECT `+raceColumns+` FROM races WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get race: %w", err)
	}
	return r, nil
}

// GetActiveRace returns the most recently created race that is not finished.
func (s *SQLiteStore) GetActiveRace(ctx context.Context) (*model.Race, error) {
	r, err := scanRace(s.db.QueryRowContext(ctx,
		`SELECT `+raceColumns+` FROM races
		WHERE status != ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, model.StatusFinished,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active race: %w", err)
	}
	return r, nil
}

// ListRaces returns a page of races ordered by created_at DESC, optionally
// filtered by status, along with the total count matching the filter.
func (s *SQLiteStore) ListRaces(ctx context.Context, status string, limit, offset int) ([]*model.Race, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where := ""
	var args []any
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM races"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count races: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+raceColumns+` FROM races`+where+`
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list races: %w", err)
	}
	defer rows.Close()

	var races []*model.Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan race: %w", err)
		}
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate races: %w", err)
	}

	return races, total, nil
}

// UpdateRace applies the non-nil fields of u and returns the updated race.
func (s *SQLiteStore) UpdateRace(ctx context.Context, id string, u model.RaceUpdate) (*model.Race, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, *u.Mode)
	}
	if u.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, *u.StartTime)
	}
	if u.DurationMS != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *u.DurationMS)
	}
	if u.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, *u.EndTime)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE races SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		append(args, id)...,
	)
	if err != nil {
		return nil, fmt.Errorf("update race: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return s.GetRace(ctx, id)
}

// DeleteRace removes a race together with its drivers and laps.
func (s *SQLiteStore) DeleteRace(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	// Foreign keys are off unless enabled per connection, so cascade by hand.
	if _, err := tx.ExecContext(ctx, "DELETE FROM lap_times WHERE race_id = ?", id); err != nil {
		return fmt.Errorf("delete laps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM drivers WHERE race_id = ?", id); err != nil {
		return fmt.Errorf("delete drivers: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM races WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete race: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// AddDriver inserts a driver. Duplicate names or car numbers within the race
// return ErrConflict.
func (s *SQLiteStore) AddDriver(ctx context.Context, d *model.Driver) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drivers (id, race_id, name, car_number, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.RaceID, d.Name, d.CarNumber, d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

// UpdateDriver applies u to a driver of raceID and returns the driver as
// stored. A duplicate name or car number returns ErrConflict.
func (s *SQLiteStore) UpdateDriver(ctx context.Context, raceID, driverID string, u model.DriverUpdate) (*model.Driver, error) {
	var sets []string
	var args []any
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.CarNumber != nil {
		sets = append(sets, "car_number = ?")
		args = append(args, *u.CarNumber)
	}

	if len(sets) > 0 {
		args = append(args, driverID, raceID)
		result, err := s.db.ExecContext(ctx,
			"UPDATE drivers SET "+strings.Join(sets, ", ")+" WHERE id = ? AND race_id = ?", args...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrConflict
			}
			return nil, fmt.Errorf("update driver: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	var d model.Driver
	err := s.db.QueryRowContext(ctx,
		"SELECT id, race_id, name, car_number, created_at FROM drivers WHERE id = ? AND race_id = ?",
		driverID, raceID,
	).Scan(&d.ID, &d.RaceID, &d.Name, &d.CarNumber, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}

// RemoveDriver deletes a driver belonging to the given race.
func (s *SQLiteStore) RemoveDriver(ctx context.Context, raceID, driverID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM drivers WHERE id = ? AND race_id = ?", driverID, raceID,
	)
	if err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDrivers returns the drivers of a race ordered by car number.
func (s *SQLiteStore) GetDrivers(ctx context.Context, raceID string) ([]model.Driver, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, race_id, name, car_number, created_at
		FROM drivers WHERE race_id = ? ORDER BY car_number ASC`, raceID,
	)
	if err != nil {
		return nil, fmt.Errorf("get drivers: %w", err)
	}
	defer rows.Close()

	drivers := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		if err := rows.Scan(&d.ID, &d.RaceID, &d.Name, &d.CarNumber, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drivers: %w", err)
	}
	return drivers, nil
}

// AppendLap inserts a lap record and sets its ID.
func (s *SQLiteStore) AppendLap(ctx context.Context, l *model.Lap) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO lap_times (race_id, car_number, lap_number, timestamp, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.RaceID, l.CarNumber, l.LapNumber, l.Timestamp, l.DurationMS, l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert lap: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("lap id: %w", err)
	}
	l.ID = id
	return nil
}

// GetLaps returns every lap of a race ordered by car number, then timestamp.
func (s *SQLiteStore) GetLaps(ctx context.Context, raceID string) ([]model.Lap, error) {
	return s.queryLaps(ctx,
		`SELECT id, race_id, car_number, lap_number, timestamp, duration_ms, created_at
		FROM lap_times WHERE race_id = ?
		ORDER BY car_number ASC, timestamp ASC, lap_number ASC`, raceID,
	)
}

// GetLapsForCar returns the laps of one car ordered by timestamp.
func (s *SQLiteStore) GetLapsForCar(ctx context.Context, raceID string, carNumber int) ([]model.Lap, error) {
	return s.queryLaps(ctx,
		`SELECT id, race_id, car_number, lap_number, timestamp, duration_ms, created_at
		FROM lap_times WHERE race_id = ? AND car_number = ?
		ORDER BY timestamp ASC, lap_number ASC`, raceID, carNumber,
	)
}

func (s *SQLiteStore) queryLaps(ctx context.Context, query string, args ...any) ([]model.Lap, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get laps: %w", err)
	}
	defer rows.Close()

	laps := []model.Lap{}
	for rows.Next() {
		var l model.Lap
		if err := rows.Scan(&l.ID, &l.RaceID, &l.CarNumber, &l.LapNumber, &l.Timestamp, &l.DurationMS, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lap: %w", err)
		}
		laps = append(laps, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate laps: %w", err)
	}
	return laps, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
