package syncer

import (
	"context"
	"sync"
)

// OwnerLocks serializes exclusive work per owner account. Sync sessions
// take the lock with TryAcquire (a second session is rejected, not
// queued); maintenance takes it with Acquire and waits for an in-flight
// session to finish.
type OwnerLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewOwnerLocks creates an empty lock registry
func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{
		held: make(map[string]chan struct{}),
	}
}

// TryAcquire takes the owner's lock if it is free. Returns false when
// the lock is already held.
func (l *OwnerLocks) TryAcquire(ownerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[ownerID]; ok {
		return false
	}
	l.held[ownerID] = make(chan struct{})
	return true
}

// Acquire blocks until the owner's lock is free or the context is done
func (l *OwnerLocks) Acquire(ctx context.Context, ownerID string) error {
	for {
		l.mu.Lock()
		released, ok := l.held[ownerID]
		if !ok {
			l.held[ownerID] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-released:
		}
	}
}

// Release frees the owner's lock and wakes blocked acquirers
func (l *OwnerLocks) Release(ownerID string) {
	l.mu.Lock()
	released := l.held[ownerID]
	delete(l.held, ownerID)
	l.mu.Unlock()

	if released != nil {
		close(released)
	}
}
