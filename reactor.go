package ioexec

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Reactor is a run-to-completion dispatcher: a FIFO queue of posted
// callables drained by a single goroutine inside Run. It owns no
// goroutine itself; ExecutorService starts one Run per worker.
//
// Stop and Reset work in generations. Stop closes the current quit
// channel; Reset arms a fresh one. A Run that started before a Reset
// keeps watching its own generation's channel, so a stale loop can
// never be revived by a later Reset.
type Reactor struct {
	mu      sync.Mutex
	tasks   *queue.Queue
	quit    chan struct{}
	stopped bool

	wake        chan struct{}
	outstanding atomic.Int64
}

func NewReactor() *Reactor {
	return &Reactor{
		tasks: queue.New(),
		quit:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
}

// Post enqueues task for execution on the dispatch goroutine. Tasks
// posted from one goroutine run in submission order. A task posted
// after Stop is enqueued but never dispatched.
func (r *Reactor) Post(task func()) {
	r.mu.Lock()
	r.tasks.Add(task)
	r.mu.Unlock()
	r.notify()
}

// Stop signals the current Run to return without draining the queue.
// Safe to call repeatedly and from any goroutine.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.quit)
	}
	r.mu.Unlock()
	r.notify()
}

// Stopped reports whether the current generation has been stopped.
func (r *Reactor) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Reset re-arms a stopped reactor so Run can be called again. Queued
// tasks survive the reset.
func (r *Reactor) Reset() {
	r.mu.Lock()
	if r.stopped {
		r.stopped = false
		r.quit = make(chan struct{})
	}
	r.mu.Unlock()
}

// WorkGuard keeps Run from returning while the guarded operation is
// in flight. Release is idempotent.
type WorkGuard struct {
	r        *Reactor
	released atomic.Bool
}

// NewWork registers outstanding work with the reactor. Run returns
// only once the task queue is empty and every guard has been
// released, or once Stop is called.
func (r *Reactor) NewWork() *WorkGuard {
	r.outstanding.Add(1)
	return &WorkGuard{r: r}
}

func (w *WorkGuard) Release() {
	if w.released.CompareAndSwap(false, true) {
		if w.r.outstanding.Add(-1) == 0 {
			w.r.notify()
		}
	}
}

func (r *Reactor) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) pop() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks.Length() == 0 {
		return nil
	}
	task := r.tasks.Peek().(func())
	r.tasks.Remove()
	return task
}

// Run executes posted tasks until the reactor is stopped or runs out
// of work. A panic escaping dispatch is recovered and returned as an
// error so the caller can still observe loop termination.
func (r *Reactor) Run() (err error) {
	r.mu.Lock()
	quit := r.quit
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reactor dispatch: %v", p)
		}
	}()

	for {
		select {
		case <-quit:
			// The wake channel is shared across generations. A wake
			// token consumed by this loop may belong to a Post aimed
			// at a newer generation, so pass one on before exiting.
			r.notify()
			return nil
		default:
		}

		if task := r.pop(); task != nil {
			task()
			continue
		}
		if r.outstanding.Load() == 0 {
			return nil
		}

		select {
		case <-quit:
			r.notify()
			return nil
		case <-r.wake:
		}
	}
}
