package app

import (
	"sync"
	"time"
)

// tickScheduler drives lifecycle ticks from a single time.Ticker. The
// pipeline loop selects on C, so ticks are serialized with frames.
type tickScheduler struct {
	mu       sync.Mutex
	ticker   *time.Ticker
	interval time.Duration
}

func newTickScheduler() *tickScheduler {
	t := time.NewTicker(time.Hour)
	t.Stop()
	return &tickScheduler{ticker: t}
}

// Schedule restarts the tick with interval.
func (s *tickScheduler) Schedule(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	s.ticker.Reset(interval)
}

// Cancel stops the tick.
func (s *tickScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = 0
	s.ticker.Stop()
}

// Interval returns the current period, 0 when cancelled.
func (s *tickScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// C delivers ticks.
func (s *tickScheduler) C() <-chan time.Time {
	return s.ticker.C
}
