// Package api provides the JSON handlers of the HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/lifecycle"
)

// Session is the running gesture session the API reports on and controls.
type Session interface {
	Snapshot() lifecycle.Snapshot
	Gestures() []gesture.Definition
	// Reset discards all examples and restarts training.
	Reset()
}

// SessionHandler serves /api/gestures, /api/status and /api/reset.
type SessionHandler struct {
	session Session
}

// NewSessionHandler creates a SessionHandler for session.
func NewSessionHandler(session Session) *SessionHandler {
	return &SessionHandler{session: session}
}

type gestureResponse struct {
	Label               int     `json:"label"`
	Event               string  `json:"event"`
	Name                string  `json:"name"`
	FireOnce            bool    `json:"fire_once"`
	RequiredAccuracy    float64 `json:"required_accuracy"`
	Throttle            bool    `json:"throttle"`
	TrainingDelayMs     int64   `json:"training_delay_ms"`
	TrainingTimeMs      int64   `json:"training_time_ms"`
	TrainingPrompt      string  `json:"training_prompt"`
	VerificationDelayMs int64   `json:"verification_delay_ms"`
	VerificationTimeMs  int64   `json:"verification_time_ms"`
	VerificationPrompt  string  `json:"verification_prompt"`
}

type listGesturesResponse struct {
	Gestures []gestureResponse `json:"gestures"`
}

type statusResponse struct {
	State      string           `json:"state"`
	Index      int              `json:"index"`
	Preparing  bool             `json:"preparing"`
	Ticking    bool             `json:"ticking"`
	Gesture    *gestureResponse `json:"gesture,omitempty"`
	Prompt     string           `json:"prompt,omitempty"`
	Prediction *gestureResponse `json:"prediction,omitempty"`
	Confidence float64          `json:"confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toGestureResponse(label int, g gesture.Definition) gestureResponse {
	return gestureResponse{
		Label:               label,
		Event:               g.Event,
		Name:                g.Name,
		FireOnce:            g.FireOnce,
		RequiredAccuracy:    g.RequiredAccuracy,
		Throttle:            g.Throttle,
		TrainingDelayMs:     ms(g.TrainingDelay),
		TrainingTimeMs:      ms(g.TrainingTime),
		TrainingPrompt:      g.TrainingPrompt,
		VerificationDelayMs: ms(g.VerificationDelay),
		VerificationTimeMs:  ms(g.VerificationTime),
		VerificationPrompt:  g.VerificationPrompt,
	}
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

// Gestures handles GET /api/gestures and GET /api/gestures/{event}.
func (h *SessionHandler) Gestures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	event := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/gestures"), "/")
	gestures := h.session.Gestures()

	if event == "" {
		response := listGesturesResponse{Gestures: make([]gestureResponse, 0, len(gestures))}
		for i, g := range gestures {
			response.Gestures = append(response.Gestures, toGestureResponse(i, g))
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	for i, g := range gestures {
		if g.Event == event {
			writeJSON(w, http.StatusOK, toGestureResponse(i, g))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Gesture not found")
}

// Status handles GET /api/status.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.status())
}

// Reset handles POST /api/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.session.Reset()
	writeJSON(w, http.StatusAccepted, h.status())
}

func (h *SessionHandler) status() statusResponse {
	snap := h.session.Snapshot()
	resp := statusResponse{
		State:      string(snap.State),
		Index:      snap.Index,
		Preparing:  snap.Preparing,
		Ticking:    snap.Ticking,
		Prompt:     snap.Prompt,
		Confidence: snap.Confidence,
	}
	if snap.Gesture != nil {
		g := toGestureResponse(snap.Index, *snap.Gesture)
		resp.Gesture = &g
	}
	if snap.Prediction != nil {
		g := toGestureResponse(h.labelOf(snap.Prediction.Event), *snap.Prediction)
		resp.Prediction = &g
	}
	return resp
}

func (h *SessionHandler) labelOf(event string) int {
	for i, g := range h.session.Gestures() {
		if g.Event == event {
			return i
		}
	}
	return -1
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
