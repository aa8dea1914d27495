package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/seantiz/racetrack/internal/model"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "racetrack.db"
	defaultStatsCacheTTL = 5 * time.Second
	defaultTimerTick     = time.Second

	envListenAddr    = "RACETRACK_LISTEN_ADDR"
	envDBPath        = "RACETRACK_DB_PATH"
	envLogLevel      = "RACETRACK_LOG_LEVEL"
	envEnvironment   = "RACETRACK_ENV"
	envRaceDuration  = "RACETRACK_RACE_DURATION"
	envStatsCacheTTL = "RACETRACK_STATS_CACHE_TTL"
	envTimerTick     = "RACETRACK_TIMER_TICK"

	// EnvDevelopment selects the short development race length.
	EnvDevelopment = "development"
	// EnvProduction is the default environment.
	EnvProduction = "production"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	LogLevel      slog.Level
	Environment   string
	RaceDuration  time.Duration
	StatsCacheTTL time.Duration
	TimerTick     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Values that fail to parse fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		Environment:   EnvProduction,
		StatsCacheTTL: defaultStatsCacheTTL,
		TimerTick:     defaultTimerTick,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envEnvironment); v != "" {
		cfg.Environment = strings.ToLower(v)
	}

	cfg.RaceDuration = DefaultRaceDuration(cfg.Environment)
	cfg.RaceDuration = parseDuration(os.Getenv(envRaceDuration), cfg.RaceDuration)
	cfg.StatsCacheTTL = parseDuration(os.Getenv(envStatsCacheTTL), cfg.StatsCacheTTL)
	cfg.TimerTick = parseDuration(os.Getenv(envTimerTick), cfg.TimerTick)

	return cfg
}

// DefaultRaceDuration returns the planned race length for an environment.
func DefaultRaceDuration(env string) time.Duration {
	if env == EnvDevelopment {
		return model.DevelopmentRaceDuration
	}
	return model.ProductionRaceDuration
}

// parseDuration parses a positive Go duration, returning def otherwise.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseLogLevel accepts slog level names ("debug", "WARN", "info+2"),
// defaulting to info.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
