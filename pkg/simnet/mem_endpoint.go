package simnet

import (
	"errors"
	"fmt"
	"time"
)

// ErrEndpointClosed is returned by Send/SendTo on a closed endpoint.
var ErrEndpointClosed = errors.New("simnet: endpoint closed")

// PropagationDelay is the simulated one-way transit time memEndpoint uses
// for every datagram. It is nonzero so that a send and its eventual
// delivery are always distinct events in the queue (never same-tick
// re-entrancy), matching "no suspension points within a handler" (§5).
const PropagationDelay = 1 * time.Millisecond

// memEndpoint is an in-memory, lossy datagram endpoint registered against a
// Loop's address table. It is the Endpoint implementation unit tests and
// property-based scenarios run against; cmd/gossipsim's live demo instead
// uses the real-socket endpoint in udp.go.
type memEndpoint struct {
	loop     *Loop
	addr     Addr
	lossRate float64 // probability in [0,1] that a datagram is dropped in flight
	recv     func(b []byte, from Addr)
	peer     *Addr
	closed   bool
}

// NewMemEndpoint binds a new in-memory endpoint at addr on loop. lossRate
// is the fraction of datagrams silently dropped in transit (0 for
// loss-free scenarios such as P7's convergence property).
func (l *Loop) NewMemEndpoint(addr Addr, lossRate float64) (Endpoint, error) {
	if _, exists := l.sockets[addr]; exists {
		return nil, fmt.Errorf("simnet: address %s already bound", addr)
	}
	ep := &memEndpoint{loop: l, addr: addr, lossRate: lossRate}
	l.sockets[addr] = ep
	return ep, nil
}

func (e *memEndpoint) LocalAddr() Addr { return e.addr }

func (e *memEndpoint) SetRecvCallback(fn func(b []byte, from Addr)) {
	e.recv = fn
}

func (e *memEndpoint) Connect(to Addr) error {
	a := to
	e.peer = &a
	return nil
}

func (e *memEndpoint) Send(b []byte) error {
	if e.peer == nil {
		return errors.New("simnet: Send called before Connect")
	}
	return e.SendTo(b, *e.peer)
}

func (e *memEndpoint) SendTo(b []byte, to Addr) error {
	if e.closed {
		return ErrEndpointClosed
	}
	if e.lossRate > 0 {
		if p, err := e.loop.UniformInt(0, 1_000_000); err == nil && float64(p)/1_000_000 < e.lossRate {
			return nil // dropped in flight; not an error to the sender (§4.1)
		}
	}
	payload := append([]byte(nil), b...)
	from := e.addr
	e.loop.Schedule(PropagationDelay, func() {
		dst, ok := e.loop.sockets[to]
		if !ok || dst.closed || dst.recv == nil {
			return
		}
		dst.recv(payload, from)
	})
	return nil
}

func (e *memEndpoint) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	delete(e.loop.sockets, e.addr)
	return nil
}
