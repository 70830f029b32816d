package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ayusman/camgestures/internal/lifecycle"
)

func TestSessionHandler_Gestures(t *testing.T) {
	h := NewSessionHandler(newFakeSession())

	t.Run("lists gestures in label order", func(t *testing.T) {
		rec := do(t, h.Gestures, http.MethodGet, "/api/gestures", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}

		var resp listGesturesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Gestures) != 3 {
			t.Fatalf("got %d gestures", len(resp.Gestures))
		}
		first := resp.Gestures[0]
		if first.Event != "swipeLeft" || first.Name != "Swipe Left" || first.Label != 0 {
			t.Errorf("first gesture = %+v", first)
		}
		if first.TrainingTimeMs != 3000 || first.RequiredAccuracy != 90 {
			t.Errorf("defaults not reported: %+v", first)
		}
		if resp.Gestures[2].Label != 2 {
			t.Errorf("third label = %d", resp.Gestures[2].Label)
		}
	})

	t.Run("gets one gesture by event", func(t *testing.T) {
		rec := do(t, h.Gestures, http.MethodGet, "/api/gestures/thumbsUp", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var g gestureResponse
		json.NewDecoder(rec.Body).Decode(&g)
		if g.Label != 2 || g.Name != "Thumbs Up" {
			t.Errorf("gesture = %+v", g)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		rec := do(t, h.Gestures, http.MethodGet, "/api/gestures/clap", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("read only", func(t *testing.T) {
		rec := do(t, h.Gestures, http.MethodPost, "/api/gestures", `{}`)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestSessionHandler_Status(t *testing.T) {
	session := newFakeSession()
	h := NewSessionHandler(session)

	g := session.gestures[1]
	p := session.gestures[2]
	session.snap = lifecycle.Snapshot{
		State:      lifecycle.StatePredicting,
		Index:      2,
		Prediction: &p,
		Confidence: 100,
	}

	rec := do(t, h.Status, http.MethodGet, "/api/status", nil)
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "predicting" || resp.Prediction == nil || resp.Prediction.Event != "thumbsUp" || resp.Prediction.Label != 2 {
		t.Errorf("status = %+v", resp)
	}
	if resp.Gesture != nil {
		t.Error("no current gesture expected while predicting")
	}

	session.snap = lifecycle.Snapshot{State: lifecycle.StateTraining, Index: 1, Gesture: &g, Prompt: g.TrainingPrompt}
	rec = do(t, h.Status, http.MethodGet, "/api/status", nil)
	resp = statusResponse{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Gesture == nil || resp.Gesture.Event != "swipeRight" || resp.Prompt != "Perform a gesture: Swipe Right" {
		t.Errorf("status = %+v", resp)
	}
}

func TestSessionHandler_Reset(t *testing.T) {
	session := newFakeSession()
	h := NewSessionHandler(session)

	if rec := do(t, h.Reset, http.MethodGet, "/api/reset", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
	if session.resets != 0 {
		t.Fatal("GET must not reset")
	}

	rec := do(t, h.Reset, http.MethodPost, "/api/reset", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if session.resets != 1 {
		t.Errorf("resets = %d, want 1", session.resets)
	}

	var resp statusResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.State != "training" || resp.Index != 0 || !resp.Preparing {
		t.Errorf("status after reset = %+v", resp)
	}
}
