package ioexec

import (
	"sync"
	"time"
)

// DeadlineTimer is a one-deadline timer bound to an executor. Waiter
// handlers run on the executor's worker goroutine: with nil once the
// deadline passes, or with ErrTimerCanceled if the wait is aborted.
//
// Re-arming with ExpiresFromNow cancels waits outstanding against the
// previous deadline.
type DeadlineTimer struct {
	exec *ExecutorService

	mu       sync.Mutex
	deadline time.Time
	timer    *time.Timer
	waiters  []func(error)
	gen      uint64
}

// ExpiresFromNow sets the deadline d from now and returns how many
// outstanding waits it canceled.
func (t *DeadlineTimer) ExpiresFromNow(d time.Duration) int {
	t.mu.Lock()
	canceled := t.cancelLocked()
	t.deadline = time.Now().Add(d)
	t.mu.Unlock()
	t.abort(canceled)
	return len(canceled)
}

// AsyncWait registers handler to run once the deadline passes. A
// timer that was never armed fires immediately.
func (t *DeadlineTimer) AsyncWait(handler func(error)) {
	t.mu.Lock()
	t.waiters = append(t.waiters, handler)
	if t.timer == nil {
		gen := t.gen
		t.timer = time.AfterFunc(time.Until(t.deadline), func() { t.fire(gen) })
	}
	t.mu.Unlock()
}

// Cancel aborts all outstanding waits and returns how many there
// were. Each aborted handler completes on the loop with
// ErrTimerCanceled.
func (t *DeadlineTimer) Cancel() int {
	t.mu.Lock()
	canceled := t.cancelLocked()
	t.mu.Unlock()
	t.abort(canceled)
	return len(canceled)
}

// cancelLocked invalidates the pending generation and detaches its
// waiters without completing them.
func (t *DeadlineTimer) cancelLocked() []func(error) {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	waiters := t.waiters
	t.waiters = nil
	return waiters
}

func (t *DeadlineTimer) abort(waiters []func(error)) {
	for _, handler := range waiters {
		handler := handler
		t.exec.reactor.Post(func() { handler(ErrTimerCanceled) })
	}
}

func (t *DeadlineTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		// Raced with a cancel or re-arm; that generation already
		// dealt with its waiters.
		t.mu.Unlock()
		return
	}
	waiters := t.waiters
	t.waiters = nil
	t.timer = nil
	t.mu.Unlock()

	for _, handler := range waiters {
		handler := handler
		t.exec.reactor.Post(func() { handler(nil) })
	}
}
