package ioexec

import (
	"sync"
	"time"
)

// ExecutorServiceProvider pools a fixed number of executors and hands
// them out round-robin. Slots fill lazily: an executor is created and
// started the first time its slot comes up.
type ExecutorServiceProvider struct {
	mu        sync.Mutex
	executors []*ExecutorService
	nextIdx   int
}

func NewExecutorServiceProvider(numExecutors int) *ExecutorServiceProvider {
	if numExecutors <= 0 {
		numExecutors = 1
	}
	return &ExecutorServiceProvider{
		executors: make([]*ExecutorService, numExecutors),
	}
}

// ExecutorStats describes one pool slot.
type ExecutorStats struct {
	Populated    bool
	Restarts     uint64
	LoopFinished bool
}

// Stats reports the state of every slot in order.
func (p *ExecutorServiceProvider) Stats() []ExecutorStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]ExecutorStats, len(p.executors))
	for i, executor := range p.executors {
		if executor == nil {
			continue
		}
		stats[i] = ExecutorStats{
			Populated:    true,
			Restarts:     executor.Restarts(),
			LoopFinished: executor.LoopFinished(),
		}
	}
	return stats
}

// Get returns the next executor in round-robin order, creating it on
// first use of its slot.
func (p *ExecutorServiceProvider) Get() *ExecutorService {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.nextIdx % len(p.executors)
	p.nextIdx++
	if p.executors[idx] == nil {
		p.executors[idx] = NewExecutorService()
	}
	return p.executors[idx]
}

// Close shuts down every populated slot, spreading one timeout budget
// across all of them. Each slot is closed with whatever remains of
// the budget; once it runs out, later slots get a zero-timeout
// signal-and-forget close rather than being skipped. Every slot is
// emptied regardless of whether its executor finished in time, so a
// later Close never re-attempts an abandoned executor.
//
// A zero budget closes every slot without waiting; a negative budget
// waits unboundedly on each.
func (p *ExecutorServiceProvider) Close(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for i, executor := range p.executors {
		if executor != nil {
			left := timeout
			if timeout > 0 {
				left = time.Until(deadline)
				if left < 0 {
					left = 0
				}
			}
			executor.Close(left)
		}
		p.executors[i] = nil
	}
}
