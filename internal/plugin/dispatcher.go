package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/store"
)

// ActionSource looks up the actions bound to an event.
type ActionSource interface {
	ListByEvent(event string) ([]*store.Action, error)
}

// Dispatcher runs the plugin actions bound to each emitted event. Actions run
// on their own goroutines so a slow plugin never blocks the frame loop.
type Dispatcher struct {
	actions  ActionSource
	manager  *Manager
	executor *Executor
	logger   zerolog.Logger
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. onError, when set, receives every failed action.
func NewDispatcher(actions ActionSource, manager *Manager, executor *Executor, logger zerolog.Logger, onError func(error)) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		actions:  actions,
		manager:  manager,
		executor: executor,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle is an events.Handler.
func (d *Dispatcher) Handle(n events.Notification) {
	bound, err := d.actions.ListByEvent(n.Event)
	if err != nil {
		d.fail(fmt.Errorf("list actions for %q: %w", n.Event, err))
		return
	}

	for _, a := range bound {
		a := a
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.run(a, n); err != nil {
				d.fail(err)
			}
		}()
	}
}

func (d *Dispatcher) run(a *store.Action, n events.Notification) error {
	p, err := d.manager.Get(a.PluginName)
	if err != nil {
		return fmt.Errorf("action %s: %q: %w", a.ID, a.PluginName, err)
	}
	if !p.HasAction(a.ActionName) {
		return fmt.Errorf("action %s: plugin %q has no action %q", a.ID, a.PluginName, a.ActionName)
	}

	resp, err := d.executor.Execute(d.ctx, p, &Request{
		Action:     a.ActionName,
		Event:      n.Event,
		Label:      n.Label,
		Confidence: n.Confidence,
		Config:     a.Config,
	})
	if err != nil {
		return fmt.Errorf("action %s: %w", a.ID, err)
	}
	if !resp.Success {
		return fmt.Errorf("action %s: plugin %q reported: %s", a.ID, a.PluginName, resp.Error)
	}

	d.logger.Debug().Str("event", n.Event).Str("plugin", a.PluginName).Str("action", a.ActionName).Msg("action executed")
	return nil
}

func (d *Dispatcher) fail(err error) {
	d.logger.Error().Err(err).Msg("action failed")
	if d.onError != nil {
		d.onError(err)
	}
}

// Wait blocks until all running actions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels running actions and waits for them to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
