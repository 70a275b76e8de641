package ioexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineTimerFires(t *testing.T) {
	e := NewExecutorService()
	defer e.Close(-1)

	timer, err := e.CreateDeadlineTimer()
	require.NoError(t, err)
	canceled := timer.ExpiresFromNow(50 * time.Millisecond)
	assert.Equal(t, 0, canceled)

	start := time.Now()
	fired := make(chan error, 1)
	timer.AsyncWait(func(err error) { fired <- err })

	select {
	case err := <-fired:
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestDeadlineTimerCancelAbortsWaiters(t *testing.T) {
	e := NewExecutorService()
	defer e.Close(-1)

	timer, err := e.CreateDeadlineTimer()
	require.NoError(t, err)
	timer.ExpiresFromNow(time.Hour)

	first := make(chan error, 1)
	second := make(chan error, 1)
	timer.AsyncWait(func(err error) { first <- err })
	timer.AsyncWait(func(err error) { second <- err })

	assert.Equal(t, 2, timer.Cancel())
	for _, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			assert.ErrorIs(t, err, ErrTimerCanceled)
		case <-time.After(time.Second):
			t.Fatal("canceled waiter never completed")
		}
	}

	// Nothing left to cancel.
	assert.Equal(t, 0, timer.Cancel())
}

func TestDeadlineTimerRearmCancelsOutstandingWait(t *testing.T) {
	e := NewExecutorService()
	defer e.Close(-1)

	timer, err := e.CreateDeadlineTimer()
	require.NoError(t, err)
	timer.ExpiresFromNow(time.Hour)

	stale := make(chan error, 1)
	timer.AsyncWait(func(err error) { stale <- err })

	assert.Equal(t, 1, timer.ExpiresFromNow(30*time.Millisecond))
	select {
	case err := <-stale:
		assert.ErrorIs(t, err, ErrTimerCanceled)
	case <-time.After(time.Second):
		t.Fatal("stale waiter never completed")
	}

	fresh := make(chan error, 1)
	timer.AsyncWait(func(err error) { fresh <- err })
	select {
	case err := <-fresh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("re-armed timer did not fire")
	}
}

func TestDeadlineTimerUnarmedFiresImmediately(t *testing.T) {
	e := NewExecutorService()
	defer e.Close(-1)

	timer, err := e.CreateDeadlineTimer()
	require.NoError(t, err)

	fired := make(chan error, 1)
	timer.AsyncWait(func(err error) { fired <- err })
	select {
	case err := <-fired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unarmed timer did not fire")
	}
}
