package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/racetrack/internal/engine"
)

type leaderboardResponse struct {
	RaceID      string                  `json:"race_id"`
	Leaderboard []engine.LeaderboardRow `json:"leaderboard"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, "get stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.engine.Leaderboard(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, "get leaderboard", err)
		return
	}
	s.writeJSON(w, http.StatusOK, leaderboardResponse{RaceID: id, Leaderboard: rows})
}
