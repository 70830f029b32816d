// Package plugin discovers external action plugins and runs them when events are emitted.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request is written as JSON to the plugin's stdin.
type Request struct {
	Action     string          `json:"action"`
	Event      string          `json:"event"`
	Label      int             `json:"label"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// HasAction reports whether the manifest declares action. A manifest without
// an action list accepts any action.
func (p *Plugin) HasAction(action string) bool {
	if len(p.Manifest.Actions) == 0 {
		return true
	}
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}
