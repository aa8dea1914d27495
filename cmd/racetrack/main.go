package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/racetrack/internal/api"
	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/config"
	"github.com/seantiz/racetrack/internal/engine"
	"github.com/seantiz/racetrack/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("racetrack: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"env", cfg.Environment,
		"race_duration", cfg.RaceDuration.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := broadcast.NewBroker()
	hub := broadcast.NewHub(logger)
	go hub.Run(ctx)

	eng := engine.New(db, broadcast.Multi{broker, hub}, engine.Config{
		RaceDuration: cfg.RaceDuration,
		StatsTTL:     cfg.StatsCacheTTL,
		TickInterval: cfg.TimerTick,
	}, logger)
	defer eng.Close()

	if err := eng.Resume(ctx); err != nil {
		log.Fatalf("failed to resume race: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, eng, broker, hub, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
