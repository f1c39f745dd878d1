package engine

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// TimerHandle is a running timer that can be stopped.
type TimerHandle interface {
	Stop() bool
}

// TimerSource creates timers whose callback runs on an arbitrary goroutine.
// Loop.After wraps the callback so the real work is posted onto the loop.
type TimerSource interface {
	AfterFunc(d time.Duration, f func()) TimerHandle
}

type wallTimers struct{}

func (wallTimers) AfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}

// Timer is a loop-bound timer returned by Loop.After.
// Stop must be called from a Task on the owning loop.
type Timer struct {
	handle  TimerHandle
	stopped bool
}

// Stop cancels the timer. It is safe to call on a nil or already-fired
// Timer. Returns true if this call prevented the callback from running.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped {
		return false
	}
	t.stopped = true
	if t.handle != nil {
		t.handle.Stop()
	}
	return true
}

// ManualTimers is a TimerSource driven by Advance instead of wall time.
// Used by tests and by scenario runs so timeouts are reproducible.
type ManualTimers struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*manualTimer
}

type manualTimer struct {
	owner    *ManualTimers
	id       int
	deadline time.Duration
	fn       func()
}

// NewManualTimers creates a manual source at virtual time zero.
func NewManualTimers() *ManualTimers {
	return &ManualTimers{}
}

// AfterFunc implements TimerSource.
func (m *ManualTimers) AfterFunc(d time.Duration, f func()) TimerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{owner: m, id: m.nextID, deadline: m.now + d, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Stop implements TimerHandle.
func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, other := range m.timers {
		if other == t {
			m.timers = slices.Delete(m.timers, i, i+1)
			return true
		}
	}
	return false
}

// Advance moves virtual time forward by d and fires every timer now due,
// earliest deadline first (creation order breaks ties).
func (m *ManualTimers) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []*manualTimer
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.deadline <= m.now {
			due = append(due, t)
		} else {
			kept = append(kept, t)
		}
	}
	m.timers = kept
	m.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *manualTimer) int {
		if c := cmp.Compare(a.deadline, b.deadline); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	for _, t := range due {
		t.fn()
	}
}

// Now returns the current virtual time.
func (m *ManualTimers) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Armed returns the number of timers not yet fired or stopped.
func (m *ManualTimers) Armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
