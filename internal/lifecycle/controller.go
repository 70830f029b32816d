// Package lifecycle drives the train, verify and predict cycle of a gesture session.
//
// A Controller is advanced by two callbacks: OnTick, fired by a periodic
// Scheduler, and OnFrame, fired once per captured frame. The caller must not
// run them concurrently; the mutex only protects readers such as Snapshot.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/embed"
	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/knn"
)

// State is the phase of a session.
type State string

const (
	// StateTraining captures examples for each gesture in turn.
	StateTraining State = "training"
	// StateTesting logs classifier output without emitting events.
	StateTesting State = "testing"
	// StateVerifying checks each gesture is recognized before predicting.
	StateVerifying State = "verifying"
	// StatePredicting classifies frames and emits gesture events.
	StatePredicting State = "predicting"
)

// ErrClassification wraps failures of the classifier during OnFrame.
var ErrClassification = errors.New("classification failed")

// Classifier is the nearest-neighbor classifier the controller trains and queries.
type Classifier interface {
	AddExample(vec []float32, label int) error
	Predict(vec []float32, k int) (knn.Prediction, error)
	ClearAllClasses()
}

// Scheduler runs OnTick periodically.
type Scheduler interface {
	// Schedule (re)starts the periodic tick with the given interval.
	Schedule(interval time.Duration)
	// Cancel stops the tick.
	Cancel()
}

// Config holds controller tuning. Zero values are replaced by DefaultConfig values.
type Config struct {
	// TickInterval is the fixed period between lifecycle ticks.
	TickInterval time.Duration `yaml:"tick_interval"`
	// GestureTiming replaces the fixed tick with each gesture's delay and
	// duration: the preparing window lasts the delay, capture the duration.
	GestureTiming bool `yaml:"gesture_timing"`
	// TopK is the number of neighbors consulted per prediction.
	TopK int `yaml:"top_k"`
	// ThrottleInterval is the minimum time between two emits of a throttled gesture.
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	// Verify inserts a verification pass between training and predicting.
	Verify bool `yaml:"verify"`
	// Diagnostic ends training in the testing state instead of predicting.
	Diagnostic bool `yaml:"diagnostic"`
}

// DefaultConfig returns the stock controller settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:     2000 * time.Millisecond,
		TopK:             10,
		ThrottleInterval: 1000 * time.Millisecond,
	}
}

// Example is a stored training example used to resume a session.
type Example struct {
	Label  int
	Vector []float32
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State      State               `json:"state"`
	Index      int                 `json:"index"`
	Preparing  bool                `json:"preparing"`
	Ticking    bool                `json:"ticking"`
	Gesture    *gesture.Definition `json:"gesture,omitempty"`
	Prompt     string              `json:"prompt,omitempty"`
	Prediction *gesture.Definition `json:"prediction,omitempty"`
	Confidence float64             `json:"confidence"`
}

// Controller is the gesture lifecycle state machine.
type Controller struct {
	mu         sync.Mutex
	config     Config
	gestures   []gesture.Definition
	classifier Classifier
	host       events.Host
	scheduler  Scheduler
	logger     zerolog.Logger
	now        func() time.Time

	state      State
	index      int
	preparing  bool
	ticking    bool
	prediction int
	confidence float64

	// active is the label that last passed the accuracy gate, -1 when neutral.
	active    int
	lastFired map[int]time.Time

	hits   int
	trials int

	listeners []func(Snapshot)
}

// New creates a Controller for gestures. The host receives every emitted
// event; the scheduler drives OnTick.
func New(gestures []gesture.Definition, classifier Classifier, host events.Host, scheduler Scheduler, config Config, logger zerolog.Logger) (*Controller, error) {
	if len(gestures) == 0 {
		return nil, gesture.ErrNoGestures
	}

	def := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.ThrottleInterval <= 0 {
		config.ThrottleInterval = def.ThrottleInterval
	}

	gs := make([]gesture.Definition, len(gestures))
	copy(gs, gestures)

	return &Controller{
		config:     config,
		gestures:   gs,
		classifier: classifier,
		host:       host,
		scheduler:  scheduler,
		logger:     logger.With().Str("component", "lifecycle").Logger(),
		now:        time.Now,
		state:      StateTraining,
		index:      -1,
		prediction: -1,
		active:     -1,
		lastFired:  make(map[int]time.Time),
	}, nil
}

// Gestures returns a copy of the session's gesture definitions.
func (c *Controller) Gestures() []gesture.Definition {
	gs := make([]gesture.Definition, len(c.gestures))
	copy(gs, c.gestures)
	return gs
}

// OnChange registers fn to be called with a fresh snapshot after every state change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start begins a training session from the first gesture.
func (c *Controller) Start() {
	c.mu.Lock()
	c.state = StateTraining
	c.index = -1
	c.preparing = false
	c.clearPrediction()
	c.hits, c.trials = 0, 0
	c.schedule(c.config.TickInterval)
	c.logger.Info().Int("gestures", len(c.gestures)).Msg("training started")
	c.mu.Unlock()

	c.changed()
}

// Reset discards all examples and restarts training at the first gesture,
// already in its preparing window.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()

	c.changed()
}

// Stop cancels the tick. The controller keeps its state.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
}

// Resume loads previously stored examples and goes straight to predicting.
func (c *Controller) Resume(examples []Example) error {
	c.mu.Lock()
	c.classifier.ClearAllClasses()
	for _, ex := range examples {
		if ex.Label < 0 || ex.Label >= len(c.gestures) {
			c.mu.Unlock()
			return fmt.Errorf("example label %d outside %d gestures", ex.Label, len(c.gestures))
		}
		if err := c.classifier.AddExample(ex.Vector, ex.Label); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrClassification, err)
		}
	}
	c.state = StatePredicting
	c.index = len(c.gestures) - 1
	c.preparing = false
	c.clearPrediction()
	c.cancel()
	c.logger.Info().Int("examples", len(examples)).Msg("resumed session")
	c.mu.Unlock()

	c.changed()
	return nil
}

// OnTick advances the lifecycle by one step.
func (c *Controller) OnTick() {
	c.mu.Lock()
	notes := c.tick()
	c.mu.Unlock()

	c.emit(notes)
	c.changed()
}

func (c *Controller) tick() []events.Notification {
	if c.preparing {
		c.preparing = false
		c.scheduleCapture()
		return nil
	}

	if c.state == StateVerifying && c.index >= 0 && !c.verified() {
		failed := c.index
		c.logger.Warn().Str("gesture", c.gestures[failed].Event).Int("hits", c.hits).Int("trials", c.trials).Msg("verification failed")
		c.reset()
		return []events.Notification{{Event: gesture.EventVerificationFailed, Label: failed}}
	}

	if c.index < len(c.gestures)-1 {
		c.index++
		c.preparing = true
		c.hits, c.trials = 0, 0
		c.schedulePrepare()
		c.logger.Info().Str("state", string(c.state)).Str("gesture", c.gestures[c.index].Event).Msg("next gesture")
		return nil
	}

	switch {
	case c.state == StateTraining && c.config.Diagnostic:
		c.state = StateTesting
		c.cancel()
		c.logger.Info().Msg("training finished, testing")
		return []events.Notification{{Event: gesture.EventDoneTraining, Label: -1}}

	case c.state == StateTraining && c.config.Verify:
		c.state = StateVerifying
		c.index = -1
		c.schedule(c.config.TickInterval)
		c.logger.Info().Msg("training finished, verifying")
		return []events.Notification{{Event: gesture.EventDoneTraining, Label: -1}}

	case c.state == StateTraining:
		c.state = StatePredicting
		c.cancel()
		c.logger.Info().Msg("training finished, predicting")
		return []events.Notification{{Event: gesture.EventDoneTraining, Label: -1}}

	case c.state == StateVerifying:
		c.state = StatePredicting
		c.cancel()
		c.logger.Info().Msg("verification finished, predicting")
		return []events.Notification{{Event: gesture.EventDoneVerification, Label: -1}}

	default:
		c.state = StatePredicting
		c.cancel()
		return nil
	}
}

// WantsFrame reports whether OnFrame would use the next frame. Frames that
// arrive with no gesture selected or inside a preparing window are dropped.
func (c *Controller) WantsFrame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateTraining, StateVerifying:
		return c.index != -1 && !c.preparing
	default:
		return true
	}
}

// OnFrame handles the embedding of one frame according to the current
// state. The controller owns emb and closes it before returning.
func (c *Controller) OnFrame(emb *embed.Embedding) error {
	defer emb.Close()

	c.mu.Lock()
	notes, err := c.frame(emb.Values())
	c.mu.Unlock()

	c.emit(notes)
	if len(notes) > 0 {
		c.changed()
	}
	return err
}

func (c *Controller) frame(vec []float32) ([]events.Notification, error) {
	switch c.state {
	case StateTraining:
		if c.index == -1 || c.preparing {
			return nil, nil
		}
		if err := c.classifier.AddExample(vec, c.index); err != nil {
			return nil, fmt.Errorf("%w: add example for %q: %v", ErrClassification, c.gestures[c.index].Event, err)
		}
		return nil, nil

	case StateTesting:
		pred, err := c.classifier.Predict(vec, c.config.TopK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassification, err)
		}
		c.logger.Debug().Int("label", pred.Label).Float64("confidence", pred.Confidence()*100).Msg("testing prediction")
		return nil, nil

	case StateVerifying:
		if c.index == -1 || c.preparing {
			return nil, nil
		}
		pred, err := c.classifier.Predict(vec, c.config.TopK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassification, err)
		}
		c.trials++
		if pred.Label == c.index && pred.Confidence()*100 >= c.gestures[c.index].RequiredAccuracy {
			c.hits++
		}
		return nil, nil

	case StatePredicting:
		pred, err := c.classifier.Predict(vec, c.config.TopK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassification, err)
		}
		return c.predicted(pred), nil
	}

	return nil, nil
}

// predicted applies the accuracy, fire-once and throttle gates to pred.
func (c *Controller) predicted(pred knn.Prediction) []events.Notification {
	confidence := pred.Confidence() * 100
	label := pred.Label

	if label < 0 || label >= len(c.gestures) || confidence < c.gestures[label].RequiredAccuracy {
		wasActive := c.active != -1
		c.clearPrediction()
		if wasActive {
			return []events.Notification{{Event: gesture.EventNeutral, Label: -1, Confidence: confidence}}
		}
		return nil
	}

	g := c.gestures[label]
	c.prediction = label
	c.confidence = confidence

	fire := true
	if g.FireOnce && c.active == label {
		fire = false
	}
	now := c.now()
	if g.Throttle {
		if last, ok := c.lastFired[label]; ok && now.Sub(last) < c.config.ThrottleInterval {
			fire = false
		}
	}
	c.active = label

	if !fire {
		return nil
	}
	c.lastFired[label] = now
	return []events.Notification{{Event: g.Event, Label: label, Confidence: confidence}}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:     c.state,
		Index:     c.index,
		Preparing: c.preparing,
		Ticking:   c.ticking,
	}
	if c.index >= 0 && c.state != StatePredicting {
		g := c.gestures[c.index]
		s.Gesture = &g
		if c.state == StateVerifying {
			s.Prompt = g.VerificationPrompt
		} else {
			s.Prompt = g.TrainingPrompt
		}
	}
	if c.prediction >= 0 {
		p := c.gestures[c.prediction]
		s.Prediction = &p
		s.Confidence = c.confidence
	}
	return s
}

func (c *Controller) reset() {
	c.classifier.ClearAllClasses()
	c.state = StateTraining
	c.index = 0
	c.preparing = true
	c.hits, c.trials = 0, 0
	c.clearPrediction()
	c.lastFired = make(map[int]time.Time)
	c.schedule(c.config.TickInterval)
	c.schedulePrepare()
	c.logger.Info().Msg("session reset")
}

// verified reports whether the current gesture met its accuracy during
// verification. A gesture that saw no frames is not held against the session.
func (c *Controller) verified() bool {
	if c.trials == 0 {
		return true
	}
	ratio := float64(c.hits) / float64(c.trials) * 100
	return ratio >= c.gestures[c.index].RequiredAccuracy
}

func (c *Controller) clearPrediction() {
	c.prediction = -1
	c.confidence = 0
	c.active = -1
}

func (c *Controller) schedule(d time.Duration) {
	c.ticking = true
	if c.scheduler != nil {
		c.scheduler.Schedule(d)
	}
}

func (c *Controller) cancel() {
	c.ticking = false
	if c.scheduler != nil {
		c.scheduler.Cancel()
	}
}

// schedulePrepare sets the preparing window length when gesture timing is on.
func (c *Controller) schedulePrepare() {
	if !c.config.GestureTiming || c.index < 0 {
		return
	}
	g := c.gestures[c.index]
	d := g.TrainingDelay
	if c.state == StateVerifying {
		d = g.VerificationDelay
	}
	if d > 0 {
		c.schedule(d)
	}
}

// scheduleCapture sets the capture window length when gesture timing is on.
func (c *Controller) scheduleCapture() {
	if !c.config.GestureTiming || c.index < 0 || !c.ticking {
		return
	}
	g := c.gestures[c.index]
	d := g.TrainingTime
	if c.state == StateVerifying {
		d = g.VerificationTime
	}
	if d > 0 {
		c.schedule(d)
	}
}

func (c *Controller) emit(notes []events.Notification) {
	if c.host == nil {
		return
	}
	for _, n := range notes {
		c.host.Emit(n)
	}
}

func (c *Controller) changed() {
	c.mu.Lock()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	snap := c.snapshot()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
