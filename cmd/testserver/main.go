// testserver starts a racetrack API server on an in-memory database with a
// short race and a seeded upcoming race, for E2E testing and display work.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/racetrack/internal/api"
	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/engine"
	"github.com/seantiz/racetrack/internal/model"
	"github.com/seantiz/racetrack/internal/store"
)

var seedDrivers = []string{"Ayrton", "Michael", "Kimi", "Lewis"}

func main() {
	addr := ":8080"
	if v := os.Getenv("RACETRACK_LISTEN_ADDR"); v != "" {
		addr = v
	}
	duration := model.DevelopmentRaceDuration
	if v := os.Getenv("RACETRACK_RACE_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			duration = d
		}
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	broker := broadcast.NewBroker()
	hub := broadcast.NewHub(logger)
	go hub.Run(ctx)

	eng := engine.New(db, broadcast.Multi{broker, hub}, engine.Config{RaceDuration: duration}, logger)
	defer eng.Close()

	sess, err := eng.CreateSession(ctx)
	if err != nil {
		log.Fatalf("failed to seed race: %v", err)
	}
	for _, name := range seedDrivers {
		if _, _, err := eng.AddDriver(ctx, sess.Race.ID, name, nil); err != nil {
			log.Fatalf("failed to seed driver %q: %v", name, err)
		}
	}

	srv := api.NewServer(addr, eng, broker, hub, logger)

	logger.Info("testserver: starting", "addr", addr, "race_id", sess.Race.ID, "race_duration", duration.String())
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
