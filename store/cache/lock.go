package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLockTimeout is returned when a lock cannot be acquired within
// the caller's wait bound. Callers drop the work rather than retry.
var ErrLockTimeout = errors.New("lock: wait time elapsed")

// Locker grants mutual exclusion over string keys with bounded lease
// (max hold) and wait (max queue) times. Webhook processing takes a
// lock per external user id so messages from the same sender are
// handled one at a time.
type Locker interface {
	// Acquire blocks up to wait for the lock on key. The returned
	// lock self-expires after lease; a holder that outlives its
	// lease loses exclusivity to the next waiter.
	Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Lock, error)
}

// Lock is a scoped hold on one key.
type Lock struct {
	locker *KeyedLocker
	key    string
	state  *lockState

	once sync.Once
}

// Release frees the lock. Safe to call more than once and on all
// exit paths; releasing an already-expired lock is a no-op.
func (l *Lock) Release() {
	l.once.Do(func() {
		l.locker.release(l.key, l.state)
	})
}

type lockState struct {
	expiresAt time.Time
	released  chan struct{}
}

// KeyedLocker is the in-process Locker implementation. Lease expiry
// is enforced on acquisition: a waiter that observes an expired
// holder takes the lock over it.
type KeyedLocker struct {
	mu   sync.Mutex
	held map[string]*lockState
}

// NewKeyedLocker creates a locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{
		held: make(map[string]*lockState),
	}
}

// Acquire implements Locker.
func (kl *KeyedLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)

	for {
		kl.mu.Lock()
		current, ok := kl.held[key]
		now := time.Now()
		if !ok || now.After(current.expiresAt) {
			state := &lockState{
				expiresAt: now.Add(lease),
				released:  make(chan struct{}),
			}
			kl.held[key] = state
			kl.mu.Unlock()
			return &Lock{locker: kl, key: key, state: state}, nil
		}
		released := current.released
		holderExpiry := current.expiresAt
		kl.mu.Unlock()

		if wait <= 0 || !now.Before(deadline) {
			return nil, ErrLockTimeout
		}

		// Wake on release, on the holder's lease expiring, or on
		// our own wait deadline, whichever comes first.
		wakeAt := deadline
		if holderExpiry.Before(wakeAt) {
			wakeAt = holderExpiry
		}
		timer := time.NewTimer(time.Until(wakeAt))
		select {
		case <-released:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrLockTimeout
		}
	}
}

func (kl *KeyedLocker) release(key string, state *lockState) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Only the state we granted may release; a lease-expired lock
	// whose key was re-granted must not free the successor.
	if current, ok := kl.held[key]; ok && current == state {
		delete(kl.held, key)
	}
	close(state.released)
}

var _ Locker = (*KeyedLocker)(nil)
