package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/racetrack/internal/engine"
	"github.com/seantiz/racetrack/internal/model"
)

// recordLapRequest is the JSON body for POST /v1/races/{id}/laps. Timestamp
// is Unix milliseconds and defaults to the time the request is handled.
type recordLapRequest struct {
	CarNumber int    `json:"car_number"`
	Timestamp *int64 `json:"timestamp"`
}

type lapsResponse struct {
	RaceID string      `json:"race_id"`
	Laps   []model.Lap `json:"laps"`
}

func (s *Server) handleListLaps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		laps []model.Lap
		err  error
	)
	if v := r.URL.Query().Get("car"); v != "" {
		car, convErr := strconv.Atoi(v)
		if convErr != nil {
			s.writeError(w, http.StatusBadRequest, engine.KindValidation, "car must be a number")
			return
		}
		laps, err = s.engine.LapsForCar(r.Context(), id, car)
	} else {
		laps, err = s.engine.Laps(r.Context(), id)
	}
	if err != nil {
		s.writeEngineError(w, r, "list laps", err)
		return
	}
	s.writeJSON(w, http.StatusOK, lapsResponse{RaceID: id, Laps: laps})
}

func (s *Server) handleRecordLap(w http.ResponseWriter, r *http.Request) {
	var req recordLapRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}
	ts := time.Now().UnixMilli()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	res, err := s.engine.RecordLap(r.Context(), chi.URLParam(r, "id"), req.CarNumber, ts)
	if err != nil {
		s.writeEngineError(w, r, "record lap", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}
