// Package heartbeat detects steps that stopped reporting progress.
package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrStalled is returned by Monitor.Run when no heartbeat arrived within the
// stall timeout.
var ErrStalled = errors.New("heartbeat timeout exceeded")

// Monitor tracks the liveness of one step attempt.
//
// The attempt start counts as the first heartbeat. Every interval the
// monitor compares the time since the last heartbeat to the timeout, so a
// stall is reported between timeout and timeout+interval after the last
// heartbeat.
type Monitor struct {
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	last    time.Time
	beats   int
	details any
}

// New returns a monitor whose clock starts now. A non-positive interval
// checks once per timeout.
func New(clock clockwork.Clock, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = timeout
	}
	return &Monitor{
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		last:     clock.Now(),
	}
}

// RecordHeartbeat resets the stall clock and remembers details.
func (m *Monitor) RecordHeartbeat(details any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.clock.Now()
	m.beats++
	if details != nil {
		m.details = details
	}
}

// Details returns the last non-nil progress token.
func (m *Monitor) Details() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.details
}

// Beats returns how many heartbeats were recorded.
func (m *Monitor) Beats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beats
}

func (m *Monitor) sinceLast() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Since(m.last)
}

// Run checks liveness until ctx is done (returns nil) or the step stalls
// (returns ErrStalled). Cancel ctx once the step returned.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		timer := m.clock.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}

		if ctx.Err() != nil {
			return nil
		}
		if m.sinceLast() >= m.timeout {
			return ErrStalled
		}
	}
}
