package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seantiz/racetrack/internal/broadcast"
	"github.com/seantiz/racetrack/internal/engine"
)

// sseKeepAlive is how often an idle SSE stream sends a comment line so that
// proxies do not close it.
const sseKeepAlive = 15 * time.Second

// snapshotPayload is the state sent to a terminal when it connects.
type snapshotPayload struct {
	Current     *engine.Session         `json:"current"`
	Leaderboard []engine.LeaderboardRow `json:"leaderboard"`
}

// snapshot builds the initial event for a new subscriber.
func (s *Server) snapshot(ctx context.Context) (broadcast.Event, error) {
	p := snapshotPayload{Leaderboard: []engine.LeaderboardRow{}}

	sess, err := s.engine.Current(ctx)
	switch {
	case err == nil:
		p.Current = sess
		if sess.Stats != nil {
			p.Leaderboard = engine.Leaderboard(sess.Stats)
		}
	case !engine.IsKind(err, engine.KindNotFound):
		return broadcast.Event{}, err
	}

	return broadcast.Event{Name: broadcast.Snapshot, Payload: p, At: time.Now().UTC()}, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before taking the snapshot so nothing published in between
	// is lost.
	ch, unsub := s.broker.Subscribe()
	defer unsub()

	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "build snapshot", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if err := writeSSEEvent(w, snap); err != nil {
		return
	}
	flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return // Broker closed on shutdown.
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flush()
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "build snapshot", err)
		return
	}
	// On failure the upgrader has already written the HTTP error.
	if err := s.hub.Accept(w, r, snap); err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
	}
}

// writeSSEEvent writes ev as a named SSE event with a JSON data line.
func writeSSEEvent(w io.Writer, ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
