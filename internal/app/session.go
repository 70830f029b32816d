package app

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/lifecycle"
	"github.com/ayusman/camgestures/internal/metrics"
	"github.com/ayusman/camgestures/internal/store"
)

// recorder persists the running session: its state, its training examples
// and the events it emits. With a nil store every method is a no-op.
type recorder struct {
	store *store.Store
	fail  func(kind string, err error)

	mu      sync.Mutex
	session string
	state   lifecycle.State
}

// begin creates a new session row for gestures.
func (r *recorder) begin(gestures []gesture.Definition) {
	if r.store == nil {
		return
	}
	sess := &store.Session{Gestures: eventNames(gestures), State: string(lifecycle.StateTraining)}
	if err := r.store.Sessions().Create(sess); err != nil {
		r.fail(metrics.FailureStore, fmt.Errorf("create session: %w", err))
		return
	}
	r.mu.Lock()
	r.session = sess.ID
	r.state = lifecycle.StateTraining
	r.mu.Unlock()
}

// resumable returns the stored examples of the latest finished session
// trained on the same gestures, or nil.
func (r *recorder) resumable(gestures []gesture.Definition) (*store.Session, []lifecycle.Example, error) {
	if r.store == nil {
		return nil, nil, nil
	}
	sess, err := r.store.Sessions().Latest(string(lifecycle.StatePredicting))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find session: %w", err)
	}
	if !slices.Equal(sess.Gestures, eventNames(gestures)) {
		return nil, nil, nil
	}

	stored, err := r.store.Examples().ListBySession(sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load examples: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil, nil
	}
	examples := make([]lifecycle.Example, len(stored))
	for i, ex := range stored {
		examples[i] = lifecycle.Example{Label: ex.Label, Vector: ex.Vector}
	}
	return sess, examples, nil
}

// adopt makes an existing session the current one.
func (r *recorder) adopt(sess *store.Session) {
	r.mu.Lock()
	r.session = sess.ID
	r.state = lifecycle.State(sess.State)
	r.mu.Unlock()
}

func (r *recorder) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// stateChanged is a lifecycle change listener.
func (r *recorder) stateChanged(s lifecycle.Snapshot) {
	if r.store == nil {
		return
	}
	r.mu.Lock()
	id := r.session
	changed := id != "" && s.State != r.state
	r.state = s.State
	r.mu.Unlock()

	if !changed {
		return
	}
	if err := r.store.Sessions().UpdateState(id, string(s.State)); err != nil {
		r.fail(metrics.FailureStore, fmt.Errorf("update session %s: %w", id, err))
	}
}

// event is an events.Handler writing the history table.
func (r *recorder) event(n events.Notification) {
	if r.store == nil {
		return
	}
	rec := &store.EventRecord{
		SessionID:  r.current(),
		Event:      n.Event,
		Label:      n.Label,
		Confidence: n.Confidence,
	}
	if err := r.store.Events().Create(rec); err != nil {
		r.fail(metrics.FailureStore, fmt.Errorf("record event %q: %w", n.Event, err))
	}
}

// boundEvents is an events.InterestSource over stored action bindings.
func (r *recorder) boundEvents() []string {
	if r.store == nil {
		return nil
	}
	names, err := r.store.Actions().BoundEvents()
	if err != nil {
		r.fail(metrics.FailureStore, fmt.Errorf("list bound events: %w", err))
		return nil
	}
	return names
}

// persistentClassifier stores every example it learns under the current
// session so a later run can resume without training.
type persistentClassifier struct {
	lifecycle.Classifier
	rec *recorder
}

func (c *persistentClassifier) AddExample(vec []float32, label int) error {
	if err := c.Classifier.AddExample(vec, label); err != nil {
		return err
	}
	if c.rec.store == nil {
		return nil
	}
	if id := c.rec.current(); id != "" {
		if err := c.rec.store.Examples().Add(id, label, vec); err != nil {
			c.rec.fail(metrics.FailureStore, fmt.Errorf("store example: %w", err))
		}
	}
	return nil
}

func (c *persistentClassifier) ClearAllClasses() {
	c.Classifier.ClearAllClasses()
	if c.rec.store == nil {
		return
	}
	if id := c.rec.current(); id != "" {
		if err := c.rec.store.Examples().DeleteBySession(id); err != nil {
			c.rec.fail(metrics.FailureStore, fmt.Errorf("clear examples: %w", err))
		}
	}
}

func eventNames(gestures []gesture.Definition) []string {
	names := make([]string, len(gestures))
	for i, g := range gestures {
		names[i] = g.Event
	}
	return names
}
