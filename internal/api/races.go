package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/racetrack/internal/engine"
	"github.com/seantiz/racetrack/internal/model"
)

// listRacesResponse wraps the paginated list response.
type listRacesResponse struct {
	Races  []*engine.Session `json:"races"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// changeModeRequest is the JSON body for PUT /v1/races/{id}/mode.
type changeModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", engine.DefaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > engine.MaxListLimit {
		limit = engine.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	withStats, _ := strconv.ParseBool(r.URL.Query().Get("include_stats"))

	races, total, err := s.engine.ListSessions(r.Context(), r.URL.Query().Get("status"), limit, offset, withStats)
	if err != nil {
		s.writeEngineError(w, r, "list races", err)
		return
	}

	s.writeJSON(w, http.StatusOK, listRacesResponse{
		Races:  races,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCreateRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.CreateSession(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "create race", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleCurrentRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Current(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "get current race", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleNextRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.NextRace(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "get next race", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, "get race", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteRace(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, r, "delete race", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.StartSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, "start race", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndRace(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.EndSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, "end race", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleChangeMode(w http.ResponseWriter, r *http.Request) {
	var req changeModeRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}

	race, err := s.engine.ChangeMode(r.Context(), chi.URLParam(r, "id"), req.Mode)
	if err != nil {
		s.writeEngineError(w, r, "change mode", err)
		return
	}
	s.writeJSON(w, http.StatusOK, race)
}

// requireRaceID answers 404 for path ids that cannot name a race, before any
// store lookup.
func (s *Server) requireRaceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !model.ValidID(id) {
			s.writeError(w, http.StatusNotFound, engine.KindNotFound, "race "+id+" not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
