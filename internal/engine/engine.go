package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/store"
	"github.com/seantiz/racetrack/internal/timefmt"
)

// Publisher receives every state change the engine makes.
type Publisher interface {
	Publish(name string, payload any)
}

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	// RaceDuration is the planned length of races started by this engine.
	RaceDuration time.Duration
	// StatsTTL bounds how long computed stats are served from cache.
	StatsTTL time.Duration
	// TickInterval is the countdown publish period of a running race. A
	// negative value disables countdown updates.
	TickInterval time.Duration
	// InactiveAfter marks a driver inactive when no lap was recorded within it.
	InactiveAfter time.Duration
	// Now overrides the clock.
	Now func() time.Time
}

// Session is a race together with its drivers and current standings.
type Session struct {
	Race    *model.Race    `json:"race"`
	Drivers []model.Driver `json:"drivers"`
	Stats   *RaceStats     `json:"stats,omitempty"`
}

// LapResult is returned by RecordLap.
type LapResult struct {
	Lap         model.Lap        `json:"lap"`
	Stats       *RaceStats       `json:"stats"`
	Leaderboard []LeaderboardRow `json:"leaderboard"`
}

// Engine runs race sessions. All state-changing operations on one race are
// serialized; operations on different races proceed independently.
type Engine struct {
	store  store.Store
	pub    Publisher
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	cache  *StatsCache
	timers *timerArena

	// createMu guards the single active race check in CreateSession.
	createMu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*raceLock
}

// raceLock is the write lock of one race. refs counts holders and waiters so
// the entry can be dropped once nobody needs it.
type raceLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an engine backed by s that publishes to pub.
func New(s store.Store, pub Publisher, cfg Config, logger *slog.Logger) *Engine {
	if cfg.RaceDuration <= 0 {
		cfg.RaceDuration = model.ProductionRaceDuration
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = DefaultStatsTTL
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = DefaultInactiveAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:  s,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		now:    cfg.Now,
		cache:  NewStatsCache(cfg.StatsTTL, cfg.Now),
		timers: newTimerArena(),
		locks:  make(map[string]*raceLock),
	}
}

// Close stops all race timers and waits for them to exit. Races left in
// progress are picked up again by Resume.
func (e *Engine) Close() {
	e.timers.close()
}

// lockRace acquires the write lock of one race and returns its release func.
func (e *Engine) lockRace(id string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &raceLock{}
		e.locks[id] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.locksMu.Unlock()
	}
}

func (e *Engine) publish(name string, payload any) {
	if e.pub != nil {
		e.pub.Publish(name, payload)
	}
}

// loadRace fetches a race, translating a missing row into a not-found error.
func (e *Engine) loadRace(ctx context.Context, id string) (*model.Race, error) {
	r, err := e.store.GetRace(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errorf(KindNotFound, "race %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load race: %w", err)
	}
	return r, nil
}

// stats returns the standings of race, from cache when fresh. The race row
// is reloaded inside the computation so a cached entry never mixes a status
// or mode from before an invalidation with laps from after it.
func (e *Engine) stats(ctx context.Context, race *model.Race) (*RaceStats, error) {
	id := race.ID
	return e.cache.Get(id, func() (*RaceStats, error) {
		current, err := e.loadRace(ctx, id)
		if err != nil {
			return nil, err
		}
		drivers, err := e.store.GetDrivers(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get drivers: %w", err)
		}
		laps, err := e.store.GetLaps(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get laps: %w", err)
		}
		return ComputeStats(current, drivers, laps, e.now().UTC(), e.cfg.InactiveAfter), nil
	})
}

// refreshStats invalidates and recomputes the standings after a write. The
// write has already been applied, so a failure here is logged and nil
// stats are returned rather than reporting the operation as failed.
func (e *Engine) refreshStats(ctx context.Context, race *model.Race) *RaceStats {
	e.cache.Invalidate(race.ID)
	s, err := e.stats(ctx, race)
	if err != nil {
		e.logger.Error("failed to compute race stats", "race_id", race.ID, "error", err)
		return nil
	}
	return s
}

// publishNextRace announces the race waiting to start, or nil if none is.
func (e *Engine) publishNextRace(ctx context.Context) {
	next, err := e.NextRace(ctx)
	if err != nil && !IsKind(err, KindNotFound) {
		e.logger.Error("failed to load next race", "error", err)
		return
	}
	e.publish(broadcast.NextRaceUpdate, next)
}

func (e *Engine) publishFlag(race *model.Race) {
	e.publish(broadcast.FlagStatusUpdate, map[string]any{
		"race_id": race.ID,
		"mode":    race.Mode,
		"flag":    broadcast.FlagFor(race.Mode),
	})
}

// publishTimer announces the time left on a running race.
func (e *Engine) publishTimer(race *model.Race) {
	if race.StartTime == nil {
		return
	}
	duration := time.Duration(race.DurationMS) * time.Millisecond
	remaining := timefmt.TimeRemaining(*race.StartTime, duration, e.now())
	e.publish(broadcast.RaceTimerUpdate, map[string]any{
		"race_id":           race.ID,
		"time_remaining_ms": remaining.Milliseconds(),
		"formatted":         timefmt.FormatTimer(remaining.Milliseconds()),
		"humanized":         timefmt.Humanize(remaining),
	})
}

// armTimer schedules the automatic end of a running race.
func (e *Engine) armTimer(race *model.Race) {
	deadline, ok := race.Deadline()
	if !ok {
		return
	}
	// The deadline is measured on the engine clock; the context runs on the
	// wall clock.
	wall := time.Now().Add(deadline.Sub(e.now()))
	id := race.ID
	e.timers.arm(id, wall, e.cfg.TickInterval,
		func() { e.publishTimer(race) },
		func() { e.expire(id) },
	)
	e.logger.Info("race timer armed", "race_id", id, "deadline", deadline)
}

// expire ends a race whose time has run out. A manual end that got there
// first surfaces as a state error and is ignored.
func (e *Engine) expire(id string) {
	ctx := context.Background()
	e.logger.Info("race time expired", "race_id", id)

	if _, err := e.ChangeMode(ctx, id, model.ModeFinish); err != nil {
		if IsKind(err, KindNotFound) {
			return
		}
		if IsKind(err, KindState) {
			e.logger.Debug("finish mode not applied on expiry", "race_id", id, "error", err)
		} else {
			e.logger.Error("failed to set finish mode on expiry", "race_id", id, "error", err)
		}
	}
	if _, err := e.EndSession(ctx, id); err != nil {
		if IsKind(err, KindState) || IsKind(err, KindNotFound) {
			e.logger.Debug("race already ended before expiry", "race_id", id, "error", err)
			return
		}
		e.logger.Error("failed to end race on expiry", "race_id", id, "error", err)
	}
}

// Resume re-arms the timer of a race left running by a previous process, or
// ends it at once if its time has already run out.
func (e *Engine) Resume(ctx context.Context) error {
	race, err := e.store.GetActiveRace(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get active race: %w", err)
	}
	if race.Status != model.StatusInProgress {
		return nil
	}

	deadline, ok := race.Deadline()
	if ok && deadline.After(e.now()) {
		e.armTimer(race)
		return nil
	}
	e.logger.Warn("resumed race is overdue, ending it", "race_id", race.ID)
	e.expire(race.ID)
	return nil
}
