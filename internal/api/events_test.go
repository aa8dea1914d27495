package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seantiz/racetrack/internal/broadcast"
)

// sseEvent is one parsed event from an SSE stream.
type sseEvent struct {
	name string
	data string
}

// readSSE parses events from the stream onto a channel until it ends.
func readSSE(body *bufio.Scanner) <-chan sseEvent {
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		var ev sseEvent
		for body.Scan() {
			line := body.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func nextSSE(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream ended before %q", name)
			}
			if ev.name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", name)
		}
	}
}

func TestEventsStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readSSE(bufio.NewScanner(resp.Body))

	snap := nextSSE(t, events, broadcast.Snapshot)
	var first struct {
		Payload snapshotPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(snap.data), &first); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if first.Payload.Current != nil {
		t.Errorf("snapshot current = %+v, want none", first.Payload.Current)
	}

	id := createRace(t, ts.URL)

	created := nextSSE(t, events, broadcast.RaceCreated)
	if !strings.Contains(created.data, id) {
		t.Errorf("raceCreated data %s does not mention race %s", created.data, id)
	}
	nextSSE(t, events, broadcast.NextRaceUpdate)
}

func TestWebsocketStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := createRace(t, ts.URL)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() broadcast.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev broadcast.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return ev
	}

	snap := read()
	if snap.Name != broadcast.Snapshot {
		t.Fatalf("first event = %q, want snapshot", snap.Name)
	}
	raw, _ := json.Marshal(snap.Payload)
	if !strings.Contains(string(raw), id) {
		t.Errorf("snapshot %s does not include the current race %s", raw, id)
	}

	// Registration with the hub completes asynchronously after the upgrade.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	do(t, "POST", ts.URL+"/v1/races/"+id+"/drivers", `{"name":"Alice"}`, nil)

	for {
		ev := read()
		if ev.Name == broadcast.DriverAdded {
			break
		}
	}
}
