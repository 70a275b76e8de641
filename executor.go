// Package ioexec provides managed asynchronous I/O executors: each
// ExecutorService runs a single-goroutine event loop and hands out
// sockets, resolvers and timers bound to it, and an
// ExecutorServiceProvider pools several executors with a shared
// shutdown budget.
package ioexec

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fzft/go-ioexec/log"
)

// ExecutorService owns a single Reactor and at most one live worker
// goroutine driving it. All reactor-bound primitives created through
// its factory methods run their completion handlers on that
// goroutine.
//
// The worker goroutine is never joined directly. It announces its
// exit by marking the finished flag and closing the generation's done
// channel; Close waits on that channel, bounded or not, depending on
// its timeout argument.
type ExecutorService struct {
	reactor *Reactor
	closed  atomic.Bool

	mu           sync.Mutex
	loopFinished bool
	doneCh       chan struct{}

	restarts atomic.Uint64
}

// NewExecutorService allocates an executor and starts its worker, so
// the returned handle is hot before any other operation touches it.
func NewExecutorService() *ExecutorService {
	e := &ExecutorService{reactor: NewReactor()}
	e.start()
	return e
}

// start spawns the worker goroutine for the current generation. The
// worker holds a work guard so the dispatch loop does not exit merely
// because the queue drains; it returns only once stopped.
func (e *ExecutorService) start() {
	done := make(chan struct{})
	e.mu.Lock()
	e.loopFinished = false
	e.doneCh = done
	e.mu.Unlock()

	go func() {
		log.Logger.Debug("running event loop on worker goroutine")
		work := e.reactor.NewWork()
		err := e.reactor.Run()
		work.Release()
		if err != nil {
			log.Logger.Error("event loop terminated", zap.Error(err))
		} else {
			log.Logger.Debug("event loop exited cleanly")
		}

		e.mu.Lock()
		// A stale worker from before a restart must not mark the
		// newer generation finished.
		if e.doneCh == done {
			e.loopFinished = true
		}
		e.mu.Unlock()
		close(done)
	}()
}

// Reactor returns the reactor this executor owns, for collaborators
// that need to pin it alive with work guards.
func (e *ExecutorService) Reactor() *Reactor { return e.reactor }

// PostWork schedules task to run on the worker goroutine. Tasks
// posted from one goroutine run in submission order. Fire-and-forget:
// no result channel, and a task posted after close begins is dropped
// by the dying loop.
func (e *ExecutorService) PostWork(task func()) {
	e.reactor.Post(task)
}

// CreateSocket allocates a new TCP socket bound to this executor's
// reactor. On allocation failure the executor restarts itself before
// surfacing the error, leaving fresh reactor state for the caller's
// next attempt.
func (e *ExecutorService) CreateSocket() (*AsyncSocket, error) {
	fd, err := openReservedSocketFD()
	if err != nil {
		e.Restart()
		log.Logger.Warn("socket allocation failed, executor restarted",
			zap.Error(err), zap.Bool("handle_exhaustion", isHandleExhaustion(err)))
		return nil, &AllocationError{Resource: "socket", Err: err}
	}
	return &AsyncSocket{exec: e, reserved: fd}, nil
}

// CreateTLSSocket wraps an already-created socket with a TLS layer
// configured by config. It allocates no reactor-owned state, so
// unlike the other factories it never triggers a restart.
func (e *ExecutorService) CreateTLSSocket(socket *AsyncSocket, config *SecurityContext) (*AsyncTLSSocket, error) {
	if socket == nil {
		return nil, ErrNotConnected
	}
	return &AsyncTLSSocket{exec: e, socket: socket, config: config}, nil
}

// CreateTCPResolver allocates a resolver bound to this executor's
// reactor, with the same restart-on-allocation-failure contract as
// CreateSocket.
func (e *ExecutorService) CreateTCPResolver() (*TCPResolver, error) {
	fd, err := openReservedDatagramFD()
	if err != nil {
		e.Restart()
		log.Logger.Warn("resolver allocation failed, executor restarted",
			zap.Error(err), zap.Bool("handle_exhaustion", isHandleExhaustion(err)))
		return nil, &AllocationError{Resource: "resolver", Err: err}
	}
	return newTCPResolver(e, fd), nil
}

// CreateDeadlineTimer allocates a timer bound to this executor's
// reactor. Timers hold no OS handle, so creation cannot fail; the
// error return keeps the factory signatures uniform.
func (e *ExecutorService) CreateDeadlineTimer() (*DeadlineTimer, error) {
	return &DeadlineTimer{exec: e}, nil
}

// Restart stops the current loop without waiting for it, re-arms the
// reactor and spawns a fresh worker. The old worker, if still
// draining, watches its own generation's quit channel and winds down
// on its own. Concurrent restarts each leave the executor runnable
// but are otherwise unsynchronized.
func (e *ExecutorService) Restart() {
	e.restarts.Add(1)
	e.Close(0) // no-op if a close is already in flight
	e.reactor.Reset()
	e.closed.Store(false)
	e.start()
}

// Restarts returns how many times this executor has restarted.
func (e *ExecutorService) Restarts() uint64 {
	return e.restarts.Load()
}

// Close shuts the executor down. Only the first caller has any
// effect; everyone after it returns immediately regardless of their
// timeout.
//
//	timeout == 0: signal stop and return, the loop finishes on its own
//	timeout  > 0: signal stop, wait for loop exit at most this long
//	timeout  < 0: signal stop, wait for loop exit unconditionally
func (e *ExecutorService) Close(timeout time.Duration) {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	if timeout == 0 {
		e.reactor.Stop()
		return
	}

	e.mu.Lock()
	done := e.doneCh
	e.mu.Unlock()
	e.reactor.Stop()

	if timeout < 0 {
		<-done
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
	}
}

// LoopFinished reports whether the current worker goroutine has
// terminated. closed does not imply this: a bounded close may return
// while the loop is still draining.
func (e *ExecutorService) LoopFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopFinished
}

// runDetached executes op off the loop and posts the completion it
// returns back onto the loop, holding a work guard for the duration
// of the operation itself.
func (e *ExecutorService) runDetached(op func() func()) {
	work := e.reactor.NewWork()
	go func() {
		complete := op()
		e.reactor.Post(complete)
		work.Release()
	}()
}
