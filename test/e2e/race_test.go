package e2e

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBinaryStartsAndServesHealthz(t *testing.T) {
	sp := startServer(t, getBinary(t), "")

	out := mustCall(t, "GET", sp.url+"/healthz", "", http.StatusOK)
	if out["status"] != "ok" {
		t.Errorf("status = %v, want ok", out["status"])
	}
}

func TestRaceOverHTTP(t *testing.T) {
	sp := startServer(t, getBinary(t), "")

	created := mustCall(t, "POST", sp.url+"/v1/races", "", http.StatusCreated)
	id, _ := field(created, "race", "id").(string)
	if len(id) != 26 {
		t.Fatalf("race id = %q, want 26-char ULID", id)
	}
	race := sp.url + "/v1/races/" + id

	for _, name := range []string{"Alice", "Bob"} {
		mustCall(t, "POST", race+"/drivers", fmt.Sprintf(`{"name":%q}`, name), http.StatusCreated)
	}
	mustCall(t, "POST", race+"/start", "", http.StatusOK)

	t0 := time.Now().UnixMilli()
	crossings := []struct {
		car int
		ts  int64
	}{
		{1, t0}, {2, t0 + 1000}, {1, t0 + 60000}, {2, t0 + 63000}, {1, t0 + 118000},
	}
	for _, c := range crossings {
		mustCall(t, "POST", race+"/laps", fmt.Sprintf(`{"car_number":%d,"timestamp":%d}`, c.car, c.ts), http.StatusCreated)
	}

	board := mustCall(t, "GET", race+"/leaderboard", "", http.StatusOK)
	rows, _ := board["leaderboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("leaderboard rows = %d, want 2", len(rows))
	}
	top, _ := rows[0].(map[string]any)
	if top["car_number"] != float64(1) || top["best_lap"] != "00:58.00" || top["total_laps"] != float64(3) {
		t.Errorf("leader = %v", top)
	}

	ended := mustCall(t, "POST", race+"/end", "", http.StatusOK)
	if field(ended, "race", "status") != "finished" || field(ended, "stats", "total_laps") != float64(5) {
		t.Errorf("ended = %v", ended)
	}
	if field(ended, "stats", "fastest_lap", "time_ms") != float64(58000) {
		t.Errorf("fastest lap = %v, want 58000", field(ended, "stats", "fastest_lap"))
	}

	// A new race can be created once the previous one is finished.
	mustCall(t, "POST", sp.url+"/v1/races", "", http.StatusCreated)
}

func TestRaceEndsWhenTimeRunsOut(t *testing.T) {
	sp := startServer(t, getBinary(t), "", "RACETRACK_RACE_DURATION=1s", "RACETRACK_TIMER_TICK=200ms")

	created := mustCall(t, "POST", sp.url+"/v1/races", "", http.StatusCreated)
	id, _ := field(created, "race", "id").(string)
	mustCall(t, "POST", sp.url+"/v1/races/"+id+"/drivers", `{"name":"Alice"}`, http.StatusCreated)
	mustCall(t, "POST", sp.url+"/v1/races/"+id+"/start", "", http.StatusOK)

	out := waitForRaceStatus(t, sp.url, id, "finished", 10*time.Second)
	if field(out, "race", "mode") != "finish" {
		t.Errorf("mode = %v, want finish", field(out, "race", "mode"))
	}
}

func TestRunningRaceSurvivesRestart(t *testing.T) {
	binary := getBinary(t)
	dbPath := filepath.Join(t.TempDir(), "race.db")

	first := startServer(t, binary, dbPath, "RACETRACK_RACE_DURATION=3s")
	created := mustCall(t, "POST", first.url+"/v1/races", "", http.StatusCreated)
	id, _ := field(created, "race", "id").(string)
	mustCall(t, "POST", first.url+"/v1/races/"+id+"/drivers", `{"name":"Alice"}`, http.StatusCreated)
	mustCall(t, "POST", first.url+"/v1/races/"+id+"/start", "", http.StatusOK)
	first.stop()

	second := startServer(t, binary, dbPath, "RACETRACK_RACE_DURATION=3s")
	waitForRaceStatus(t, second.url, id, "finished", 15*time.Second)
}

func TestEventStreamOverHTTP(t *testing.T) {
	sp := startServer(t, getBinary(t), "")

	resp, err := http.Get(sp.url + "/v1/events")
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitFor := func(event string) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %s", event)
				}
				if line == "event: "+event {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", event)
			}
		}
	}

	waitFor("snapshot")
	mustCall(t, "POST", sp.url+"/v1/races", "", http.StatusCreated)
	waitFor("raceCreated")
}

func TestMetricsAndStructuredLogs(t *testing.T) {
	sp := startServer(t, getBinary(t), "")

	created := mustCall(t, "POST", sp.url+"/v1/races", "", http.StatusCreated)
	id, _ := field(created, "race", "id").(string)
	mustCall(t, "POST", sp.url+"/v1/races/"+id+"/drivers", `{"name":"Alice"}`, http.StatusCreated)
	mustCall(t, "POST", sp.url+"/v1/races/"+id+"/start", "", http.StatusOK)
	mustCall(t, "POST", sp.url+"/v1/races/"+id+"/laps", `{"car_number":1}`, http.StatusCreated)

	resp, err := http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(bodyBytes)

	for _, name := range []string{
		"racetrack_http_requests_total",
		"racetrack_http_request_duration_seconds",
		"racetrack_laps_recorded_total 1",
		"racetrack_race_timers_armed 1",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}

	// Poll for log output with a deadline.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(sp.stdout.String(), `"msg":"race started"`) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	scanner := bufio.NewScanner(strings.NewReader(sp.stdout.String()))
	var foundRequest, foundStarted bool
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		switch entry["msg"] {
		case "request":
			foundRequest = true
			for _, key := range []string{"method", "path", "status", "duration_ms"} {
				if _, ok := entry[key]; !ok {
					t.Errorf("request log missing key %q", key)
				}
			}
		case "race started":
			foundStarted = true
			if entry["race_id"] != id {
				t.Errorf("race started log race_id = %v, want %s", entry["race_id"], id)
			}
		}
	}
	if !foundRequest || !foundStarted {
		t.Errorf("logs missing request=%v race started=%v\n%s", foundRequest, foundStarted, sp.stdout.String())
	}
}
