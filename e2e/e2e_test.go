package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/app"
	"github.com/ayusman/camgestures/internal/capture"
	"github.com/ayusman/camgestures/internal/config"
	"github.com/ayusman/camgestures/internal/embed"
	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/server"
	"github.com/ayusman/camgestures/internal/store"
)

// writeRecorderPlugin installs a plugin that saves each request it receives.
func writeRecorderPlugin(t *testing.T, pluginDir, out string) {
	t.Helper()

	dir := filepath.Join(pluginDir, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > " + out + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name": "recorder", "version": "1.0.0", "executable": "run.sh", "actions": ["record"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestE2E_TrainPredictDispatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("shell plugin")
	}

	tmpDir := t.TempDir()
	pluginDir := filepath.Join(tmpDir, "plugins")
	requestFile := filepath.Join(tmpDir, "request.json")
	writeRecorderPlugin(t, pluginDir, requestFile)

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	settings := config.Default()
	settings.Lifecycle.TickInterval = 100 * time.Millisecond
	settings.Plugins.Dir = pluginDir
	settings.Store.Path = filepath.Join(tmpDir, "data.db")

	application, err := app.New(app.Config{
		Settings:  settings,
		Store:     s,
		Camera:    capture.NewBlankMockCamera(64, 48),
		Extractor: embed.NewMockExtractor([]float32{0.2, 0.9, 0.1}),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer application.Stop()

	hub := server.NewEventHub(zerolog.Nop())
	application.Subscribe(events.Wildcard, hub.HandleEvent)

	srv := server.New(server.Config{
		Store:   s,
		Session: application,
		Plugins: application.Plugins(),
		Preview: application.Preview(),
		Hub:     hub,
		Metrics: application.Metrics().Handler(),
		Logger:  zerolog.Nop(),
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	t.Run("BindAction", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/actions", "application/json",
			strings.NewReader(`{"event": "wave", "plugin_name": "recorder", "action_name": "record", "config": {"note": "hi"}}`))
		if err != nil {
			t.Fatalf("create action error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "websocket client", func() bool { return hub.Clients() == 1 })

	t.Run("StartInfersBoundGesture", func(t *testing.T) {
		if err := application.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		gestures := application.Gestures()
		if len(gestures) != 1 || gestures[0].Event != "wave" {
			t.Fatalf("gestures = %+v", gestures)
		}
	})

	t.Run("WebsocketReceivesGesture", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var seen []string
		for {
			var msg server.Message
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v (seen %v)", err, seen)
			}
			if msg.Event == nil {
				continue
			}
			seen = append(seen, msg.Event.Event)
			if msg.Event.Event == "wave" {
				if msg.Event.Confidence != 100 {
					t.Errorf("confidence = %v, want 100", msg.Event.Confidence)
				}
				break
			}
		}
		if seen[0] != "doneTraining" {
			t.Errorf("events = %v, want doneTraining first", seen)
		}
	})

	t.Run("PluginReceivesRequest", func(t *testing.T) {
		waitFor(t, "plugin request", func() bool {
			info, err := os.Stat(requestFile)
			return err == nil && info.Size() > 0
		})
		data, _ := os.ReadFile(requestFile)
		var req struct {
			Action string          `json:"action"`
			Event  string          `json:"event"`
			Config json.RawMessage `json:"config"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			t.Fatalf("plugin request %q: %v", data, err)
		}
		if req.Action != "record" || req.Event != "wave" || !strings.Contains(string(req.Config), "hi") {
			t.Errorf("plugin request = %+v", req)
		}
	})

	t.Run("StatusAndHistory", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/status")
		if err != nil {
			t.Fatalf("GET /api/status error = %v", err)
		}
		var status struct {
			State      string `json:"state"`
			Prediction *struct {
				Event string `json:"event"`
			} `json:"prediction"`
		}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if status.State != "predicting" || status.Prediction == nil || status.Prediction.Event != "wave" {
			t.Errorf("status = %+v", status)
		}

		resp, err = client.Get(ts.URL + "/api/history")
		if err != nil {
			t.Fatalf("GET /api/history error = %v", err)
		}
		var history struct {
			Events []store.EventRecord `json:"events"`
		}
		json.NewDecoder(resp.Body).Decode(&history)
		resp.Body.Close()

		counts := map[string]int{}
		for _, e := range history.Events {
			counts[e.Event]++
			if e.SessionID != application.SessionID() {
				t.Errorf("event %q in session %q, want %q", e.Event, e.SessionID, application.SessionID())
			}
		}
		if counts["doneTraining"] != 1 || counts["wave"] != 1 {
			t.Errorf("history counts = %v, want one doneTraining and one wave (fire once)", counts)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read metrics: %v", err)
		}
		for _, want := range []string{`gesture_events_emitted_total{event="wave"} 1`, `gesture_session_state{state="predicting"} 1`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})
}
