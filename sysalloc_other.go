//go:build !linux
// +build !linux

package ioexec

import (
	"errors"
	"syscall"
)

// Descriptor reservation is a linux refinement; elsewhere allocation
// errors surface from the net package at dial time instead.
func sysOpenSocketFD() (int, error) { return -1, nil }

func sysOpenDatagramFD() (int, error) { return -1, nil }

func sysCloseFD(int) {}

func isHandleExhaustion(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}
