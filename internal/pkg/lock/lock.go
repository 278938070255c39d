// Package lock provides per-user serialization for balance-changing operations.
// It complements row locks in PostgreSQL: requests for the same user queue in
// process instead of piling up on the same row.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry is a one-slot semaphore shared by every waiter on the same user.
type entry struct {
	slot    chan struct{}
	waiters int
}

// UserLock hands out per-user locks. Entries are dropped once no goroutine
// holds or waits on them, so the map does not grow with the user base.
type UserLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
	timeout time.Duration
}

// NewUserLock creates a UserLock. A positive timeout bounds how long Lock
// waits before giving up with ErrLockTimeout.
func NewUserLock(timeout time.Duration) *UserLock {
	return &UserLock{
		entries: make(map[int64]*entry),
		timeout: timeout,
	}
}

// acquire registers the caller as a waiter and returns the user's entry.
func (ul *UserLock) acquire(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e, ok := ul.entries[userID]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		ul.entries[userID] = e
	}
	e.waiters++
	return e
}

// release drops the caller's registration and forgets idle entries.
func (ul *UserLock) release(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	e.waiters--
	if e.waiters == 0 {
		delete(ul.entries, userID)
	}
}

// Lock blocks until the user's lock is held, the context is done, or the
// configured timeout elapses.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	if ul.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ul.timeout)
		defer cancel()
	}

	e := ul.acquire(userID)
	select {
	case e.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.release(userID, e)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (ul *UserLock) TryLock(userID int64) bool {
	e := ul.acquire(userID)
	select {
	case e.slot <- struct{}{}:
		return true
	default:
		ul.release(userID, e)
		return false
	}
}

// Unlock releases a lock obtained with Lock or TryLock. Unlocking a user whose
// lock is not held is a no-op.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-e.slot:
		ul.release(userID, e)
	default:
	}
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked is a point-in-time check used by tests and diagnostics.
func (ul *UserLock) IsLocked(userID int64) bool {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	return ok && len(e.slot) == 1
}
