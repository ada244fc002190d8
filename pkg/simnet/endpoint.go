package simnet

// Endpoint is the datagram capability required of the host transport (spec
// §4.1, §6: "connect(remote), send(bytes)"). Delivery is best-effort: a
// Send that returns nil has only handed the datagram to the transport, not
// guaranteed its arrival.
type Endpoint interface {
	// Connect fixes the peer subsequent Send calls target, mirroring the
	// active role's "connect to chosen peer, then send" sequence.
	Connect(to Addr) error
	// Send transmits b to the endpoint's connected peer.
	Send(b []byte) error
	// SendTo transmits b to a specific address without disturbing any
	// connected peer, used by the passive role to reply to whichever
	// address a datagram arrived from.
	SendTo(b []byte, to Addr) error
	// SetRecvCallback installs the function invoked on every inbound
	// datagram. Only one callback is active at a time; installing a new
	// one replaces the old. A nil callback disables delivery.
	SetRecvCallback(fn func(b []byte, from Addr))
	// LocalAddr reports the endpoint's bound address.
	LocalAddr() Addr
	// Close releases the endpoint. After Close, inbound datagrams destined
	// for it are silently dropped rather than delivered (§5).
	Close() error
}
