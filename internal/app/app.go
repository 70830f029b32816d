// Package app wires the camera, the embedding model, the lifecycle
// controller and every event consumer into one running application.
package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/capture"
	"github.com/ayusman/camgestures/internal/config"
	"github.com/ayusman/camgestures/internal/embed"
	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/gesture"
	"github.com/ayusman/camgestures/internal/knn"
	"github.com/ayusman/camgestures/internal/lifecycle"
	"github.com/ayusman/camgestures/internal/metrics"
	"github.com/ayusman/camgestures/internal/plugin"
	"github.com/ayusman/camgestures/internal/store"
)

// Config holds what the application is built from. Only Settings is required.
type Config struct {
	Settings *config.Config
	// Store enables session persistence, event history and plugin actions.
	Store *store.Store
	// Camera overrides the device camera described by Settings.
	Camera capture.Camera
	// Extractor overrides the network described by Settings.
	Extractor embed.Extractor
	Logger    zerolog.Logger
	// OnError receives every runtime failure after it is logged and counted.
	OnError func(error)
}

// App is the main application.
type App struct {
	settings  *config.Config
	camera    capture.Camera
	extractor embed.Extractor
	logger    zerolog.Logger
	onError   func(error)

	bus        *events.Bus
	metrics    *metrics.Metrics
	preview    *capture.Preview
	scheduler  *tickScheduler
	rec        *recorder
	plugins    *plugin.Manager
	dispatcher *plugin.Dispatcher

	mu         sync.RWMutex
	ctrl       *lifecycle.Controller
	classifier *persistentClassifier
	listeners  []func(lifecycle.Snapshot)
	stopCh     chan struct{}
	resetCh    chan struct{}
	stopped    bool
	done       sync.WaitGroup
}

// New creates an App. Nothing is opened until Start.
func New(config Config) (*App, error) {
	if config.Settings == nil {
		return nil, errors.New("app: no settings")
	}

	a := &App{
		settings:  config.Settings,
		camera:    config.Camera,
		extractor: config.Extractor,
		logger:    config.Logger.With().Str("component", "app").Logger(),
		onError:   config.OnError,
		bus:       events.NewBus(),
		metrics:   metrics.New(),
		preview:   capture.NewPreview(),
		scheduler: newTickScheduler(),
	}
	if a.camera == nil {
		a.camera = capture.NewCamera(a.settings.Camera)
	}

	a.rec = &recorder{store: config.Store, fail: a.fail}
	a.bus.AddInterestSource(a.rec.boundEvents)
	a.bus.Subscribe(events.Wildcard, a.rec.event)
	a.bus.Subscribe(events.Wildcard, func(n events.Notification) {
		a.metrics.ObserveEvent(n.Event)
	})

	if config.Store != nil && a.settings.Plugins.Dir != "" {
		a.plugins = plugin.NewManager(a.settings.Plugins.Dir, config.Logger)
		if err := a.plugins.Discover(); err != nil {
			a.logger.Warn().Err(err).Str("dir", a.settings.Plugins.Dir).Msg("plugin discovery failed")
		}
		a.dispatcher = plugin.NewDispatcher(
			config.Store.Actions(),
			a.plugins,
			plugin.NewExecutor(a.settings.Plugins.Timeout),
			config.Logger,
			func(err error) { a.fail(metrics.FailurePlugin, err) },
		)
		a.bus.Subscribe(events.Wildcard, a.dispatcher.Handle)
	}

	return a, nil
}

// Subscribe registers handler for an event name. Subscribing before Start
// makes the name an interest from which gestures are inferred.
func (a *App) Subscribe(event string, handler events.Handler) func() {
	return a.bus.Subscribe(event, handler)
}

// OnChange registers fn to receive every lifecycle snapshot.
func (a *App) OnChange(fn func(lifecycle.Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
	if a.ctrl != nil {
		a.ctrl.OnChange(fn)
	}
}

// ResolveGestures returns the configured gestures, or infers them from the
// current interests when none are configured.
func (a *App) ResolveGestures() ([]gesture.Definition, error) {
	gs, err := a.settings.ResolveGestures()
	if err != nil {
		return nil, err
	}
	if gs == nil {
		gs = gesture.FromInterests(a.bus.Interests(), a.settings.Defaults)
	}
	if len(gs) == 0 {
		return nil, gesture.ErrNoGestures
	}
	return gs, nil
}

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("app: stopped")

// Start opens the camera and model, then trains or resumes a session. An App
// cannot be started again after Stop.
func (a *App) Start() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	if a.stopCh != nil {
		a.mu.Unlock()
		return nil
	}
	ctrl, gestures, err := a.build()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.ctrl = ctrl
	a.stopCh = make(chan struct{})
	a.resetCh = make(chan struct{}, 1)
	stopCh, resetCh := a.stopCh, a.resetCh
	a.done.Add(1)
	a.mu.Unlock()

	// Listeners may read the App, so the first snapshots go out unlocked.
	if !a.resume(ctrl, gestures) {
		a.rec.begin(gestures)
		ctrl.Start()
	}

	go a.runPipeline(ctrl, stopCh, resetCh)

	a.logger.Info().Int("gestures", len(gestures)).Msg("pipeline started")
	return nil
}

// build opens the camera and model and creates the controller.
func (a *App) build() (*lifecycle.Controller, []gesture.Definition, error) {
	gestures, err := a.ResolveGestures()
	if err != nil {
		return nil, nil, err
	}

	if err := a.camera.Open(); err != nil {
		a.metrics.ObserveFailure(metrics.FailureCamera)
		return nil, nil, err
	}
	if a.extractor == nil {
		ex, err := embed.NewDNNExtractor(a.settings.Model)
		if err != nil {
			a.camera.Close()
			a.metrics.ObserveFailure(metrics.FailureModel)
			return nil, nil, err
		}
		a.extractor = ex
	}

	a.classifier = &persistentClassifier{
		Classifier: metrics.WrapClassifier(knn.New(), a.metrics),
		rec:        a.rec,
	}
	ctrl, err := lifecycle.New(gestures, a.classifier, a.bus, a.scheduler, a.settings.Lifecycle, a.logger)
	if err != nil {
		a.camera.Close()
		return nil, nil, err
	}
	ctrl.OnChange(func(s lifecycle.Snapshot) { a.metrics.SetState(string(s.State)) })
	ctrl.OnChange(a.rec.stateChanged)
	for _, fn := range a.listeners {
		ctrl.OnChange(fn)
	}
	return ctrl, gestures, nil
}

// resume restores the latest finished session when enabled and compatible.
func (a *App) resume(ctrl *lifecycle.Controller, gestures []gesture.Definition) bool {
	if !a.settings.Store.Resume {
		return false
	}
	sess, examples, err := a.rec.resumable(gestures)
	if err != nil {
		a.fail(metrics.FailureStore, err)
		return false
	}
	if sess == nil {
		return false
	}
	if err := ctrl.Resume(examples); err != nil {
		a.classifier.ClearAllClasses()
		a.fail(metrics.FailureClassification, fmt.Errorf("resume session %s: %w", sess.ID, err))
		return false
	}
	a.rec.adopt(sess)
	a.logger.Info().Str("session", sess.ID).Int("examples", len(examples)).Msg("session resumed")
	return true
}

// Stop halts the pipeline and releases the camera, the model and running plugins.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh := a.stopCh
	a.stopCh = nil
	if stopCh != nil {
		a.stopped = true
	}
	ctrl := a.ctrl
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	a.done.Wait()

	if ctrl != nil {
		ctrl.Stop()
	}
	if err := a.camera.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("error closing camera")
	}
	if a.extractor != nil {
		if err := a.extractor.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("error closing extractor")
		}
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}

	a.logger.Info().Msg("pipeline stopped")
}

// Reset asks the pipeline to discard all examples and train again.
func (a *App) Reset() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.resetCh == nil || a.stopCh == nil {
		return
	}
	select {
	case a.resetCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the lifecycle state, or a zero Snapshot before Start.
func (a *App) Snapshot() lifecycle.Snapshot {
	a.mu.RLock()
	ctrl := a.ctrl
	a.mu.RUnlock()
	if ctrl == nil {
		return lifecycle.Snapshot{}
	}
	return ctrl.Snapshot()
}

// Gestures returns the session's gestures, or nil before Start.
func (a *App) Gestures() []gesture.Definition {
	a.mu.RLock()
	ctrl := a.ctrl
	a.mu.RUnlock()
	if ctrl == nil {
		return nil
	}
	return ctrl.Gestures()
}

// SessionID returns the id of the stored session, empty without a store.
func (a *App) SessionID() string {
	return a.rec.current()
}

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Metrics returns the application metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Preview returns the buffer holding the latest camera frame.
func (a *App) Preview() *capture.Preview { return a.preview }

// Plugins returns the plugin manager, nil when plugins are disabled.
func (a *App) Plugins() *plugin.Manager { return a.plugins }

// fail logs, counts and forwards a runtime failure.
func (a *App) fail(kind string, err error) {
	a.logger.Error().Err(err).Str("kind", kind).Msg("failure")
	a.metrics.ObserveFailure(kind)
	if a.onError != nil {
		a.onError(err)
	}
}
