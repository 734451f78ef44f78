package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/scheduler"
	"github.com/stretchr/testify/assert"
)

func TestFakeClock_FiresInOrder(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	var fired []string

	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "c") })

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, fired)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, time.Unix(0, 0).Add(2500*time.Millisecond), clock.Now())
}

func TestFakeClock_ChainedTimersWithinAdvance(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	var fired []string

	clock.AfterFunc(time.Second, func() {
		fired = append(fired, "first")
		clock.AfterFunc(time.Second, func() { fired = append(fired, "second") })
	})

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"first", "second"}, fired)
}

func TestFakeClock_FlushLimit(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	var loop func()
	loop = func() { clock.AfterFunc(time.Second, loop) }
	clock.AfterFunc(0, loop)

	assert.Equal(t, 10, clock.Flush(10))
	assert.Equal(t, 1, clock.Pending())
}

func TestGroup_CancelStopsPending(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	g := scheduler.NewGroup(clock, nil)

	count := 0
	g.After(time.Second, func() { count++ })
	g.After(2*time.Second, func() { count++ })
	assert.Equal(t, 2, g.Pending())

	assert.Equal(t, 2, g.Cancel())
	clock.Advance(5 * time.Second)
	assert.Equal(t, 0, count)

	// Group is reusable after Cancel.
	g.After(time.Second, func() { count++ })
	clock.Advance(time.Second)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, g.Pending())
}

func TestGroup_CloseRejectsNewWork(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	g := scheduler.NewGroup(clock, nil)
	g.Close()

	ran := false
	g.After(0, func() { ran = true })
	clock.Flush(10)
	assert.False(t, ran)
}

// A callback that fired before Cancel but is still waiting on the owner's lock
// must be dropped once it gets the lock.
func TestGroup_LateCallbackDropped(t *testing.T) {
	var ownerMu sync.Mutex
	clock := scheduler.NewFakeClock(time.Unix(0, 0))
	g := scheduler.NewGroup(clock, func(fn func()) {
		ownerMu.Lock()
		defer ownerMu.Unlock()
		fn()
	})

	ran := false
	g.After(time.Second, func() { ran = true })

	ownerMu.Lock()
	done := make(chan struct{})
	go func() {
		clock.Advance(time.Second) // blocks inside the executor
		close(done)
	}()
	// Let the timer fire and block on ownerMu, then cancel while holding it.
	assert.Eventually(t, func() bool { return clock.Pending() == 0 }, time.Second, time.Millisecond)
	g.Cancel()
	ownerMu.Unlock()

	<-done
	assert.False(t, ran)
}

func TestGroup_RealClock(t *testing.T) {
	g := scheduler.NewGroup(scheduler.RealClock{}, nil)
	done := make(chan struct{})
	g.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
