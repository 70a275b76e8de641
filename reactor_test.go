package ioexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactorRunsPostedTasksInOrder(t *testing.T) {
	r := NewReactor()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		r.Post(func() { got = append(got, i) })
	}

	// No outstanding work guards, so Run returns once the queue
	// drains.
	require.NoError(t, r.Run())
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestReactorWorkGuardKeepsLoopAlive(t *testing.T) {
	r := NewReactor()
	work := r.NewWork()

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case <-done:
		t.Fatal("loop exited while a work guard was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	work.Release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after guard release")
	}
}

func TestReactorWorkGuardReleaseIdempotent(t *testing.T) {
	r := NewReactor()
	work := r.NewWork()
	work.Release()
	work.Release()
	assert.Equal(t, int64(0), r.outstanding.Load())
}

func TestReactorStopAbandonsQueuedTasks(t *testing.T) {
	r := NewReactor()
	r.Stop()

	ran := false
	r.Post(func() { ran = true })

	require.NoError(t, r.Run())
	assert.False(t, ran, "stopped reactor must not dispatch")
	assert.True(t, r.Stopped())
}

func TestReactorResetAllowsRerun(t *testing.T) {
	r := NewReactor()
	r.Stop()
	require.NoError(t, r.Run())

	r.Reset()
	assert.False(t, r.Stopped())

	ran := false
	r.Post(func() { ran = true })
	require.NoError(t, r.Run())
	assert.True(t, ran)
}

func TestReactorGenerationChangeDoesNotStrandPostedTask(t *testing.T) {
	// A worker from a stopped generation exiting concurrently with a
	// Post at the next generation must not swallow the wake token and
	// leave the new worker parked over a non-empty queue.
	r := NewReactor()
	work := r.NewWork()
	defer work.Release()

	for i := 0; i < 2000; i++ {
		stale := make(chan error, 1)
		go func() { stale <- r.Run() }()

		r.Stop()
		r.Reset()

		fresh := make(chan error, 1)
		go func() { fresh <- r.Run() }()

		ran := make(chan struct{})
		r.Post(func() { close(ran) })
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: posted task stranded after generation change", i)
		}

		r.Stop()
		<-stale
		<-fresh
		r.Reset()
	}
}

func TestReactorRunRecoversDispatchPanic(t *testing.T) {
	r := NewReactor()
	r.Post(func() { panic("boom") })

	err := r.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
