// Package gesture computes the ordered gesture definitions a training session runs through.
package gesture

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Lifecycle event names. These are emitted by the controller itself and are
// never treated as trainable gestures.
const (
	EventDoneTraining       = "doneTraining"
	EventDoneVerification   = "doneVerification"
	EventNeutral            = "neutral"
	EventVerificationFailed = "verificationFailed"
)

var reservedEvents = []string{
	EventDoneTraining,
	EventDoneVerification,
	EventNeutral,
	EventVerificationFailed,
}

// Validation errors.
var (
	ErrEmptyEvent     = errors.New("gesture event name is empty")
	ErrDuplicateEvent = errors.New("duplicate gesture event name")
	ErrAccuracyRange  = errors.New("required accuracy must be between 0 and 100")
	ErrNoGestures     = errors.New("no gestures to train")
)

// Definition is a fully resolved gesture. It is immutable for a session.
type Definition struct {
	Event              string        `json:"event" yaml:"event"`
	Name               string        `json:"name" yaml:"name"`
	FireOnce           bool          `json:"fire_once" yaml:"fire_once"`
	RequiredAccuracy   float64       `json:"required_accuracy" yaml:"required_accuracy"`
	Throttle           bool          `json:"throttle" yaml:"throttle"`
	TrainingDelay      time.Duration `json:"training_delay" yaml:"training_delay"`
	TrainingTime       time.Duration `json:"training_time" yaml:"training_time"`
	TrainingPrompt     string        `json:"training_prompt" yaml:"training_prompt"`
	VerificationDelay  time.Duration `json:"verification_delay" yaml:"verification_delay"`
	VerificationTime   time.Duration `json:"verification_time" yaml:"verification_time"`
	VerificationPrompt string        `json:"verification_prompt" yaml:"verification_prompt"`
}

// Options are the component-wide defaults applied to every gesture that does
// not override a field.
type Options struct {
	FireOnce                 bool          `yaml:"fire_once"`
	RequiredAccuracy         float64       `yaml:"required_accuracy"`
	ThrottleEvents           bool          `yaml:"throttle_events"`
	TrainingDelay            time.Duration `yaml:"training_delay"`
	TrainingPromptPrefix     string        `yaml:"training_prompt_prefix"`
	TrainingTime             time.Duration `yaml:"training_time"`
	VerificationDelay        time.Duration `yaml:"verification_delay"`
	VerificationPromptPrefix string        `yaml:"verification_prompt_prefix"`
	VerificationTime         time.Duration `yaml:"verification_time"`
}

// DefaultOptions returns the stock component defaults.
func DefaultOptions() Options {
	return Options{
		FireOnce:                 true,
		RequiredAccuracy:         90,
		ThrottleEvents:           false,
		TrainingDelay:            1000 * time.Millisecond,
		TrainingPromptPrefix:     "Perform a gesture: ",
		TrainingTime:             3000 * time.Millisecond,
		VerificationDelay:        1000 * time.Millisecond,
		VerificationPromptPrefix: "Verify gesture: ",
		VerificationTime:         1000 * time.Millisecond,
	}
}

// Spec is an explicitly configured gesture. Nil and empty fields fall back to Options.
type Spec struct {
	Event              string         `yaml:"event"`
	Name               string         `yaml:"name"`
	FireOnce           *bool          `yaml:"fire_once"`
	RequiredAccuracy   *float64       `yaml:"required_accuracy"`
	Throttle           *bool          `yaml:"throttle"`
	TrainingDelay      *time.Duration `yaml:"training_delay"`
	TrainingTime       *time.Duration `yaml:"training_time"`
	TrainingPrompt     string         `yaml:"training_prompt"`
	VerificationDelay  *time.Duration `yaml:"verification_delay"`
	VerificationTime   *time.Duration `yaml:"verification_time"`
	VerificationPrompt string         `yaml:"verification_prompt"`
}

// IsReserved reports whether name is one of the lifecycle event names.
// The comparison ignores case.
func IsReserved(name string) bool {
	for _, r := range reservedEvents {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// DisplayName converts a camelCase event name to a human readable name by
// inserting a space before each internal capital letter and upper-casing the
// first letter: "swipeLeft" becomes "Swipe Left".
func DisplayName(event string) string {
	runes := []rune(event)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && runes[i-1] != ' ' {
			b.WriteRune(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FromInterests derives one definition per declared interest name, skipping
// reserved lifecycle names and preserving the order of the rest.
func FromInterests(names []string, opts Options) []Definition {
	defs := make([]Definition, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || IsReserved(name) || seen[name] {
			continue
		}
		seen[name] = true
		defs = append(defs, opts.definition(name, ""))
	}
	return defs
}

// Resolve applies opts to each explicit spec and validates the result.
func Resolve(specs []Spec, opts Options) ([]Definition, error) {
	defs := make([]Definition, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for i, s := range specs {
		if s.Event == "" {
			return nil, fmt.Errorf("gesture %d: %w", i, ErrEmptyEvent)
		}
		if seen[s.Event] {
			return nil, fmt.Errorf("gesture %q: %w", s.Event, ErrDuplicateEvent)
		}
		seen[s.Event] = true

		d := opts.definition(s.Event, s.Name)
		if s.FireOnce != nil {
			d.FireOnce = *s.FireOnce
		}
		if s.RequiredAccuracy != nil {
			d.RequiredAccuracy = *s.RequiredAccuracy
		}
		if s.Throttle != nil {
			d.Throttle = *s.Throttle
		}
		if s.TrainingDelay != nil {
			d.TrainingDelay = *s.TrainingDelay
		}
		if s.TrainingTime != nil {
			d.TrainingTime = *s.TrainingTime
		}
		if s.TrainingPrompt != "" {
			d.TrainingPrompt = s.TrainingPrompt
		}
		if s.VerificationDelay != nil {
			d.VerificationDelay = *s.VerificationDelay
		}
		if s.VerificationTime != nil {
			d.VerificationTime = *s.VerificationTime
		}
		if s.VerificationPrompt != "" {
			d.VerificationPrompt = s.VerificationPrompt
		}

		if d.RequiredAccuracy < 0 || d.RequiredAccuracy > 100 {
			return nil, fmt.Errorf("gesture %q: %w", s.Event, ErrAccuracyRange)
		}
		defs = append(defs, d)
	}

	return defs, nil
}

func (o Options) definition(event, name string) Definition {
	if name == "" {
		name = DisplayName(event)
	}
	return Definition{
		Event:              event,
		Name:               name,
		FireOnce:           o.FireOnce,
		RequiredAccuracy:   o.RequiredAccuracy,
		Throttle:           o.ThrottleEvents,
		TrainingDelay:      o.TrainingDelay,
		TrainingTime:       o.TrainingTime,
		TrainingPrompt:     o.TrainingPromptPrefix + name,
		VerificationDelay:  o.VerificationDelay,
		VerificationTime:   o.VerificationTime,
		VerificationPrompt: o.VerificationPromptPrefix + name,
	}
}
