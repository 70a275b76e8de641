//go:build linux
// +build linux

package ioexec

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysOpenSocketFD reserves a stream descriptor so handle-table
// exhaustion surfaces at socket creation rather than mid-connect.
func sysOpenSocketFD() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
}

func sysOpenDatagramFD() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
}

func sysCloseFD(fd int) {
	unix.Close(fd)
}

func isHandleExhaustion(err error) bool {
	for _, errno := range []syscall.Errno{unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
