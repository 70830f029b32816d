// Package tray provides the system tray menu: the session state at a glance
// plus reset and quit.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/camgestures/internal/lifecycle"
)

// Tray represents the system tray application.
type Tray struct {
	onReset    func()
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex
	last       lifecycle.Snapshot

	// Menu items stored for later updates
	menuState      *systray.MenuItem
	menuPrompt     *systray.MenuItem
	menuPrediction *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnReset sets the callback run when "Retrain" is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Gestures")
	systray.SetTooltip("Camera gesture control")

	t.mu.Lock()
	t.menuState = systray.AddMenuItem("", "Session state")
	t.menuState.Disable()
	t.menuPrompt = systray.AddMenuItem("", "What to do now")
	t.menuPrompt.Disable()
	t.menuPrediction = systray.AddMenuItem("", "Last recognized gesture")
	t.menuPrediction.Disable()
	t.mu.Unlock()
	t.render()
	systray.AddSeparator()

	menuReset := systray.AddMenuItem("Retrain", "Discard examples and train again")
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit")

	go func() {
		for {
			select {
			case <-menuReset.ClickedCh:
				t.call(func() func() { return t.onReset })
			case <-menuSettings.ClickedCh:
				t.call(func() func() { return t.onSettings })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// Update shows s in the menu. It is a lifecycle change listener and is safe
// to call before the tray is ready.
func (t *Tray) Update(s lifecycle.Snapshot) {
	t.mu.Lock()
	t.last = s
	t.mu.Unlock()
	t.render()
}

func (t *Tray) render() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuState == nil {
		return
	}
	state, prompt, prediction := describe(t.last)
	t.menuState.SetTitle(state)
	t.menuPrompt.SetTitle(prompt)
	t.menuPrediction.SetTitle(prediction)
}

// describe renders the three status lines of the menu.
func describe(s lifecycle.Snapshot) (state, prompt, prediction string) {
	state = "State: " + string(s.State)
	if s.State == "" {
		state = "State: starting"
	}

	switch {
	case s.Preparing && s.Gesture != nil:
		prompt = "Get ready: " + s.Gesture.Name
	case s.Prompt != "":
		prompt = s.Prompt
	default:
		prompt = "No prompt"
	}

	prediction = "Last: none"
	if s.Prediction != nil {
		prediction = fmt.Sprintf("Last: %s (%.0f%%)", s.Prediction.Name, s.Confidence)
	}
	return state, prompt, prediction
}
