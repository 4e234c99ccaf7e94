// Package timer drives preemption at fixed quantum boundaries.
package timer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Timer calls fire once per interval until stopped.
type Timer interface {
	Start(interval time.Duration, fire func()) error
	// Reset restarts the current interval, giving the next thread a full quantum.
	Reset()
	Stop()
}

// Ticker is the wall-clock Timer.
type Ticker struct {
	mu       sync.Mutex
	ticker   *time.Ticker
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewTicker returns an unstarted Ticker.
func NewTicker() *Ticker {
	return &Ticker{done: make(chan struct{})}
}

// Start begins firing on a background goroutine.
func (t *Ticker) Start(interval time.Duration, fire func()) error {
	if interval <= 0 {
		return fmt.Errorf("timer interval must be positive, got %s", interval)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		return fmt.Errorf("timer already started")
	}
	t.interval = interval
	t.ticker = time.NewTicker(interval)

	go func(c <-chan time.Time) {
		for {
			select {
			case <-c:
				fire()
			case <-t.done:
				return
			}
		}
	}(t.ticker.C)
	return nil
}

func (t *Ticker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Reset(t.interval)
	}
}

func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.ticker != nil {
			t.ticker.Stop()
		}
		close(t.done)
	})
}

// Manual is a Timer that only fires when told to. For tests.
type Manual struct {
	mu       sync.Mutex
	fire     func()
	interval time.Duration
	resets   atomic.Int64
	stopped  bool
}

// NewManual returns an unstarted Manual timer.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Start(interval time.Duration, fire func()) error {
	if interval <= 0 {
		return fmt.Errorf("timer interval must be positive, got %s", interval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = interval
	m.fire = fire
	return nil
}

func (m *Manual) Reset() { m.resets.Add(1) }

func (m *Manual) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// Fire simulates one interval expiring. A no-op before Start or after Stop.
func (m *Manual) Fire() {
	m.mu.Lock()
	fire := m.fire
	if m.stopped {
		fire = nil
	}
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Resets returns how many times Reset was called.
func (m *Manual) Resets() int { return int(m.resets.Load()) }

// Interval returns the interval passed to Start.
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Stopped reports whether Stop was called.
func (m *Manual) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
