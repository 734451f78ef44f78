package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLocker struct {
	mu       sync.Mutex
	locks    int
	unlocks  int
	lastTTL  time.Duration
	held     map[string]bool
	overlaps int
}

func (c *countingLocker) Lock(_ context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil {
		c.held = make(map[string]bool)
	}
	if c.held[key] {
		c.overlaps++
	}
	c.held[key] = true
	c.locks++
	c.lastTTL = ttl
	return func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.held[key] = false
		c.unlocks++
		return nil
	}, nil
}

func TestManager_LockLifecycle(t *testing.T) {
	loader, err := memory.NewLoader()
	require.NoError(t, err)
	mgr := NewManager(loader)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		sid := fmt.Sprintf("session-%d", i)
		require.NoError(t, mgr.WithLock(ctx, sid, func(context.Context) error { return nil }))
	}
	assert.Equal(t, 0, mgr.lockCount(), "lock entries are released")
}

func TestManager_WithLockSerializes(t *testing.T) {
	loader, err := memory.NewLoader()
	require.NoError(t, err)
	locker := &countingLocker{}
	mgr := NewManager(loader, WithLocker(locker), WithLockTTL(5*time.Second))
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.WithLock(ctx, "shared", func(context.Context) error {
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Equal(t, 20, locker.locks)
	assert.Equal(t, 20, locker.unlocks)
	assert.Equal(t, 0, locker.overlaps)
	assert.Equal(t, 5*time.Second, locker.lastTTL)
}
