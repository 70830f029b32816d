package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/store"
)

func TestAPI_ActionWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s, Session: &stubSession{}, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Bind an action to an event
	createBody := `{"event": "wave", "plugin_name": "keyboard", "action_name": "keystroke", "config": {"key": "space"}}`
	resp, err := client.Post(ts.URL+"/api/actions", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/actions error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID    string `json:"id"`
		Event string `json:"event"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	// 2. The binding makes the event an interest
	bound, err := s.Actions().BoundEvents()
	if err != nil || len(bound) != 1 || bound[0] != "wave" {
		t.Errorf("BoundEvents() = %v, %v", bound, err)
	}

	// 3. List actions
	resp, err = client.Get(ts.URL + "/api/actions")
	if err != nil {
		t.Fatalf("GET /api/actions error = %v", err)
	}
	var list struct {
		Actions []struct {
			ID string `json:"id"`
		} `json:"actions"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Actions) != 1 || list.Actions[0].ID != created.ID {
		t.Errorf("actions = %+v", list.Actions)
	}

	// 4. Record history and read it back
	if err := s.Events().Create(&store.EventRecord{Event: "wave", Label: 0, Confidence: 100}); err != nil {
		t.Fatalf("Events().Create() error = %v", err)
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
	if len(history.Events) != 1 || history.Events[0].Event != "wave" {
		t.Errorf("history = %+v", history.Events)
	}

	// 5. Delete the binding
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/actions/"+created.ID, nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}
