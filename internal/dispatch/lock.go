package dispatch

import (
	"context"
	"sync"
)

// fifoLock is a mutex that hands ownership to waiters in arrival order and
// lets a waiter give up when its context ends.
type fifoLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// Lock blocks until the lock is owned or ctx is done.
func (l *fifoLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Unlock が先に所有権を渡していたので次へ回す
		l.Unlock()
		return ctx.Err()
	}
}

// TryLock takes the lock only if nobody holds or waits for it.
func (l *fifoLock) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held || len(l.waiters) > 0 {
		return false
	}
	l.held = true
	return true
}

// Unlock releases the lock, passing it straight to the oldest waiter.
func (l *fifoLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		panic("dispatch: unlock of unlocked fifoLock")
	}
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	l.held = false
}

// Busy reports whether the lock is held or contended.
func (l *fifoLock) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held || len(l.waiters) > 0
}

// Waiting returns the number of queued waiters.
func (l *fifoLock) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
