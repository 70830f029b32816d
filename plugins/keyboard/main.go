// Package main is a keyboard plugin that sends a key press when a gesture event fires.
// It uses AppleScript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request is the JSON the dispatcher writes to stdin.
type Request struct {
	Action     string          `json:"action"`
	Event      string          `json:"event"`
	Label      int             `json:"label"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// Response is written to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeystrokeParams come from the action binding's config, or from params when set.
type KeystrokeParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

var xdotoolModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	switch req.Action {
	case "keystroke", "shortcut":
		p, err := parseParams(req)
		if err != nil {
			writeResponse(Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)})
			return
		}
		if err := sendKeystroke(runtime.GOOS, p); err != nil {
			writeResponse(Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)})
			return
		}
	default:
		writeResponse(Response{Error: fmt.Sprintf("unknown action: %s", req.Action)})
		return
	}

	writeResponse(Response{Success: true})
}

func parseParams(req Request) (KeystrokeParams, error) {
	raw := req.Params
	if len(raw) == 0 || string(raw) == "null" {
		raw = req.Config
	}

	var p KeystrokeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("failed to parse params: %w", err)
		}
	}
	if p.Key == "" {
		return p, fmt.Errorf("key is required")
	}
	return p, nil
}

func sendKeystroke(goos string, p KeystrokeParams) error {
	switch goos {
	case "darwin":
		return run("osascript", "-e", buildKeystrokeScript(p.Key, p.Modifiers))
	case "linux":
		return run("xdotool", "key", buildXdotoolChord(p.Key, p.Modifiers))
	default:
		return fmt.Errorf("unsupported platform %s", goos)
	}
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	var mods []string
	for _, mod := range modifiers {
		if m, ok := appleModifiers[strings.ToLower(mod)]; ok {
			mods = append(mods, m)
		}
	}

	if len(mods) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, strings.Join(mods, ", "))
}

// buildXdotoolChord returns an xdotool key chord such as "ctrl+shift+t".
func buildXdotoolChord(key string, modifiers []string) string {
	var parts []string
	for _, mod := range modifiers {
		if m, ok := xdotoolModifiers[strings.ToLower(mod)]; ok {
			parts = append(parts, m)
		}
	}
	return strings.Join(append(parts, key), "+")
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
