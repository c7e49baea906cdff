package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	lock, err := locker.Acquire(ctx, "lock:263770123456", time.Minute, 0)
	require.NoError(t, err)

	// Same key, zero wait: must fail immediately, not block.
	_, err = locker.Acquire(ctx, "lock:263770123456", time.Minute, 0)
	assert.ErrorIs(t, err, ErrLockTimeout)

	// A different key is unaffected.
	other, err := locker.Acquire(ctx, "lock:263770999999", time.Minute, 0)
	require.NoError(t, err)
	other.Release()

	lock.Release()

	// Released: acquirable again.
	lock2, err := locker.Acquire(ctx, "lock:263770123456", time.Minute, 0)
	require.NoError(t, err)
	lock2.Release()
}

func TestKeyedLockerWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	lock, err := locker.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(ctx, "k", time.Minute, 2*time.Second)
		assert.NoError(t, err)
		if second != nil {
			second.Release()
		}
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	lock.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock after release")
	}
}

func TestKeyedLockerWaitElapses(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	lock, err := locker.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)
	defer lock.Release()

	start := time.Now()
	_, err = locker.Acquire(ctx, "k", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second, "wait bound must be honored")
}

func TestKeyedLockerLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	stuck, err := locker.Acquire(ctx, "k", 30*time.Millisecond, 0)
	require.NoError(t, err)

	// The holder's lease runs out; the waiter takes over.
	next, err := locker.Acquire(ctx, "k", time.Minute, time.Second)
	require.NoError(t, err)

	// The expired holder's late release must not free the new grant.
	stuck.Release()
	_, err = locker.Acquire(ctx, "k", time.Minute, 0)
	assert.ErrorIs(t, err, ErrLockTimeout)

	next.Release()
}

func TestKeyedLockerReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	lock, err := locker.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)
	lock.Release()
	lock.Release()

	lock2, err := locker.Acquire(ctx, "k", time.Minute, 0)
	require.NoError(t, err)
	lock2.Release()
}

func TestKeyedLockerSerializesCounter(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedLocker()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := locker.Acquire(ctx, "k", time.Minute, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			counter++
			lock.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}
