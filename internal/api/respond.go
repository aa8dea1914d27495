package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/seantiz/racetrack/internal/engine"
)

const maxBodySize = 1 << 20 // 1 MB

// errorResponse is the JSON body of every error response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, kind engine.Kind, message string) {
	label := string(kind)
	if label == "" {
		label = "internal"
	}
	httpErrorsTotal.WithLabelValues(label).Inc()
	s.writeJSON(w, status, errorResponse{Error: message, Kind: string(kind)})
}

// statusFor maps engine error kinds to HTTP status codes.
var statusFor = map[engine.Kind]int{
	engine.KindValidation: http.StatusBadRequest,
	engine.KindNotFound:   http.StatusNotFound,
	engine.KindConflict:   http.StatusConflict,
	engine.KindCapacity:   http.StatusConflict,
	engine.KindState:      http.StatusUnprocessableEntity,
}

// writeEngineError writes the response for an error returned by the engine.
// Errors without a kind are infrastructure failures and are not exposed.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var e *engine.Error
	if errors.As(err, &e) {
		s.writeError(w, statusFor[e.Kind], e.Kind, e.Message)
		return
	}
	s.logger.Error(op, "error", err, "path", r.URL.Path)
	s.writeError(w, http.StatusInternalServerError, "", op+" failed")
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	s.writeError(w, http.StatusBadRequest, engine.KindValidation, "invalid JSON body")
	return false
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
