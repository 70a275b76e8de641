package ioexec

import (
	"context"
	"net"
	"sync"
)

// TCPResolver resolves host/service pairs to TCP addresses on behalf
// of an executor. Lookups run off-loop; completion handlers run on
// the executor's worker goroutine.
type TCPResolver struct {
	exec     *ExecutorService
	resolver *net.Resolver
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	reserved int
	closed   bool
}

func newTCPResolver(e *ExecutorService, reserved int) *TCPResolver {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPResolver{
		exec:     e,
		resolver: net.DefaultResolver,
		ctx:      ctx,
		cancel:   cancel,
		reserved: reserved,
	}
}

// AsyncResolve looks up host and service ("9092", "https", ...) and
// completes on the loop with the resolved TCP addresses.
func (r *TCPResolver) AsyncResolve(host, service string, handler func([]*net.TCPAddr, error)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.exec.reactor.Post(func() { handler(nil, ErrSocketClosed) })
		return
	}
	r.mu.Unlock()

	r.exec.runDetached(func() func() {
		addrs, err := r.resolve(host, service)
		return func() { handler(addrs, err) }
	})
}

func (r *TCPResolver) resolve(host, service string) ([]*net.TCPAddr, error) {
	port, err := r.resolver.LookupPort(r.ctx, "tcp", service)
	if err != nil {
		return nil, err
	}
	ips, err := r.resolver.LookupIPAddr(r.ctx, host)
	if err != nil {
		return nil, err
	}
	addrs := make([]*net.TCPAddr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, &net.TCPAddr{IP: ip.IP, Zone: ip.Zone, Port: port})
	}
	return addrs, nil
}

// Cancel aborts in-flight lookups. Their handlers still run on the
// loop, with the cancellation error.
func (r *TCPResolver) Cancel() {
	r.cancel()
}

// Close cancels outstanding lookups and releases the reserved
// descriptor. Further AsyncResolve calls complete with
// ErrSocketClosed.
func (r *TCPResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	if r.reserved > 0 {
		closeReservedFD(r.reserved)
		r.reserved = -1
	}
}
