package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/racetrack/internal/engine"
	"github.com/seantiz/racetrack/internal/model"
)

// addDriverRequest is the JSON body for POST /v1/races/{id}/drivers.
type addDriverRequest struct {
	Name      string `json:"name"`
	CarNumber *int   `json:"car_number"`
}

// raceDriversResponse is the JSON response for GET /v1/races/{id}/drivers.
type raceDriversResponse struct {
	RaceID  string         `json:"race_id"`
	Drivers []model.Driver `json:"drivers"`
}

// updateDriverRequest is the JSON body for PUT /v1/races/{id}/drivers/{driverID}.
// Omitted fields are left unchanged.
type updateDriverRequest struct {
	Name      *string `json:"name"`
	CarNumber *int    `json:"car_number"`
}

type driverResponse struct {
	Driver *model.Driver     `json:"driver"`
	Stats  *engine.RaceStats `json:"stats"`
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	drivers, err := s.engine.Drivers(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, "list drivers", err)
		return
	}
	s.writeJSON(w, http.StatusOK, raceDriversResponse{RaceID: id, Drivers: drivers})
}

func (s *Server) handleAddDriver(w http.ResponseWriter, r *http.Request) {
	var req addDriverRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}

	d, stats, err := s.engine.AddDriver(r.Context(), chi.URLParam(r, "id"), req.Name, req.CarNumber)
	if err != nil {
		s.writeEngineError(w, r, "add driver", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, driverResponse{Driver: d, Stats: stats})
}

func (s *Server) handleUpdateDriver(w http.ResponseWriter, r *http.Request) {
	var req updateDriverRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}

	d, stats, err := s.engine.UpdateDriver(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "driverID"), req.Name, req.CarNumber)
	if err != nil {
		s.writeEngineError(w, r, "update driver", err)
		return
	}
	s.writeJSON(w, http.StatusOK, driverResponse{Driver: d, Stats: stats})
}

func (s *Server) handleRemoveDriver(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RemoveDriver(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "driverID"))
	if err != nil {
		s.writeEngineError(w, r, "remove driver", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
