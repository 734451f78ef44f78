package scheduler

import (
	"sync"
	"time"
)

// Executor runs a fired callback. Owners use it to serialize callbacks with
// their own state (e.g. by taking a mutex around fn).
type Executor func(fn func())

// Group owns a set of delayed transitions that are cancelled together.
//
// Cancel stops every pending timer and bumps the group generation; a callback
// that already fired but has not yet been claimed through the Executor sees the
// new generation and is dropped. When the Executor holds the same lock as the
// caller of Cancel, no callback scheduled before Cancel can run after it.
type Group struct {
	clock Clock
	exec  Executor

	mu     sync.Mutex
	gen    uint64
	seq    uint64
	timers map[uint64]Timer
	closed bool
}

// NewGroup creates a group scheduling on clock. A nil exec runs callbacks directly.
func NewGroup(clock Clock, exec Executor) *Group {
	if clock == nil {
		clock = RealClock{}
	}
	if exec == nil {
		exec = func(fn func()) { fn() }
	}
	return &Group{
		clock:  clock,
		exec:   exec,
		timers: make(map[uint64]Timer),
	}
}

// After schedules fn to run once after d. It is a no-op on a closed group.
func (g *Group) After(d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	g.seq++
	id, gen := g.seq, g.gen
	g.timers[id] = g.clock.AfterFunc(d, func() {
		g.exec(func() {
			if g.claim(id, gen) {
				fn()
			}
		})
	})
}

func (g *Group) claim(id, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || gen != g.gen {
		return false
	}
	if _, ok := g.timers[id]; !ok {
		return false
	}
	delete(g.timers, id)
	return true
}

// Cancel stops all pending callbacks and returns how many were pending.
// The group stays usable.
func (g *Group) Cancel() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelLocked()
}

// Close cancels all pending callbacks and rejects future ones.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
	g.closed = true
}

func (g *Group) cancelLocked() int {
	n := len(g.timers)
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	g.gen++
	return n
}

// Pending returns the number of scheduled, not yet fired callbacks.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}
