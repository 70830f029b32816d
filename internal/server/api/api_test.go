package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/lifecycle"
	"github.com/ayusman/camgestures/internal/store"
)

// newTestStore creates a Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// do sends a request with an optional JSON body to h.
func do(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, &buf))
	return rec
}

type fakeSession struct {
	snap     lifecycle.Snapshot
	gestures []gesture.Definition
	resets   int
}

func (f *fakeSession) Snapshot() lifecycle.Snapshot      { return f.snap }
func (f *fakeSession) Gestures() []gesture.Definition { return f.gestures }
func (f *fakeSession) Reset() {
	f.resets++
	f.snap = lifecycle.Snapshot{State: lifecycle.StateTraining, Index: 0, Preparing: true, Ticking: true}
}

func newFakeSession() *fakeSession {
	gs := gesture.FromInterests([]string{"swipeLeft", "swipeRight", "thumbsUp"}, gesture.DefaultOptions())
	return &fakeSession{gestures: gs}
}
