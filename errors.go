package ioexec

import (
	"errors"
	"fmt"
)

var (
	// ErrTimerCanceled is delivered to waiters of a DeadlineTimer
	// whose wait was canceled before the deadline.
	ErrTimerCanceled = errors.New("timer canceled")

	// ErrSocketClosed is delivered when an operation is issued
	// against a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrNotConnected is delivered when an operation requires an
	// established connection and none exists yet.
	ErrNotConnected = errors.New("socket not connected")
)

// AllocationError reports that the system refused to create a
// reactor-bound resource. The owning executor has already restarted
// itself by the time the caller sees one.
type AllocationError struct {
	Resource string
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Resource, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
