package ioexec

import (
	"crypto/tls"
	"net"
	"sync"
)

// SecurityContext carries the TLS configuration used to wrap a plain
// socket. Opaque to this package beyond handing it to crypto/tls.
type SecurityContext = tls.Config

// Reservation hooks are package vars so tests can inject allocation
// failures without exhausting the real descriptor table.
var (
	openReservedSocketFD   = sysOpenSocketFD
	openReservedDatagramFD = sysOpenDatagramFD
	closeReservedFD        = sysCloseFD
)

// AsyncSocket is a TCP socket bound to an executor's reactor. Every
// completion handler runs on the executor's worker goroutine, so
// handlers for one socket never race each other.
//
// The handle is shared between the caller and the reactor: in-flight
// operations keep a work guard on the reactor, and the connection is
// torn down only via Close.
type AsyncSocket struct {
	exec *ExecutorService

	mu       sync.Mutex
	conn     net.Conn
	reserved int
	closed   bool
}

// AsyncConnect dials addr and completes on the loop. The descriptor
// reserved at creation is released first so the real connection can
// take its place in the handle table.
func (s *AsyncSocket) AsyncConnect(addr string, handler func(error)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.exec.reactor.Post(func() { handler(ErrSocketClosed) })
		return
	}
	s.releaseReservationLocked()
	s.mu.Unlock()

	s.exec.runDetached(func() func() {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				conn.Close()
				err = ErrSocketClosed
			} else {
				s.conn = conn
				s.mu.Unlock()
			}
		}
		return func() { handler(err) }
	})
}

// AsyncRead reads up to len(p) bytes and completes on the loop. At
// most one read may be in flight at a time.
func (s *AsyncSocket) AsyncRead(p []byte, handler func(int, error)) {
	conn := s.Conn()
	if conn == nil {
		s.exec.reactor.Post(func() { handler(0, ErrNotConnected) })
		return
	}
	s.exec.runDetached(func() func() {
		n, err := conn.Read(p)
		return func() { handler(n, err) }
	})
}

// AsyncWrite writes all of p and completes on the loop. At most one
// write may be in flight at a time.
func (s *AsyncSocket) AsyncWrite(p []byte, handler func(int, error)) {
	conn := s.Conn()
	if conn == nil {
		s.exec.reactor.Post(func() { handler(0, ErrNotConnected) })
		return
	}
	s.exec.runDetached(func() func() {
		n, err := conn.Write(p)
		return func() { handler(n, err) }
	})
}

// Conn returns the established connection, or nil before connect.
func (s *AsyncSocket) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Close releases the socket. An in-flight operation completes with
// the error the unblocked connection reports.
func (s *AsyncSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseReservationLocked()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// detach marks the socket closed and drops its connection without
// closing it, for wrappers whose own Close already tore the
// connection down.
func (s *AsyncSocket) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.releaseReservationLocked()
	s.conn = nil
}

func (s *AsyncSocket) releaseReservationLocked() {
	if s.reserved > 0 {
		closeReservedFD(s.reserved)
		s.reserved = -1
	}
}

// AsyncTLSSocket layers TLS over an already-created AsyncSocket. It
// owns no reactor state of its own; it is an adapter whose operations
// complete on the same loop as the underlying socket's.
type AsyncTLSSocket struct {
	exec   *ExecutorService
	socket *AsyncSocket
	config *SecurityContext

	mu   sync.Mutex
	conn *tls.Conn
}

// AsyncHandshake runs the TLS handshake over the connected underlying
// socket and completes on the loop.
func (t *AsyncTLSSocket) AsyncHandshake(handler func(error)) {
	raw := t.socket.Conn()
	if raw == nil {
		t.exec.reactor.Post(func() { handler(ErrNotConnected) })
		return
	}
	t.mu.Lock()
	if t.conn == nil {
		t.conn = tls.Client(raw, t.config)
	}
	conn := t.conn
	t.mu.Unlock()

	t.exec.runDetached(func() func() {
		err := conn.Handshake()
		return func() { handler(err) }
	})
}

// AsyncRead reads plaintext from the TLS layer and completes on the
// loop.
func (t *AsyncTLSSocket) AsyncRead(p []byte, handler func(int, error)) {
	conn := t.tlsConn()
	if conn == nil {
		t.exec.reactor.Post(func() { handler(0, ErrNotConnected) })
		return
	}
	t.exec.runDetached(func() func() {
		n, err := conn.Read(p)
		return func() { handler(n, err) }
	})
}

// AsyncWrite writes plaintext through the TLS layer and completes on
// the loop.
func (t *AsyncTLSSocket) AsyncWrite(p []byte, handler func(int, error)) {
	conn := t.tlsConn()
	if conn == nil {
		t.exec.reactor.Post(func() { handler(0, ErrNotConnected) })
		return
	}
	t.exec.runDetached(func() func() {
		n, err := conn.Write(p)
		return func() { handler(n, err) }
	})
}

// ConnectionState reports the TLS state once a handshake has begun.
func (t *AsyncTLSSocket) ConnectionState() (tls.ConnectionState, bool) {
	conn := t.tlsConn()
	if conn == nil {
		return tls.ConnectionState{}, false
	}
	return conn.ConnectionState(), true
}

// Close tears down the TLS layer and the underlying socket. Closing
// the TLS connection closes the raw connection beneath it, so the
// inner socket is detached rather than closed a second time.
func (t *AsyncTLSSocket) Close() error {
	if conn := t.tlsConn(); conn != nil {
		err := conn.Close()
		t.socket.detach()
		return err
	}
	return t.socket.Close()
}

func (t *AsyncTLSSocket) tlsConn() *tls.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}
