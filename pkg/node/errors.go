package node

import "errors"

// Sentinel error kinds. Every error returned or logged by this package
// wraps exactly one of these via fmt.Errorf("...: %w", Kind) so callers
// can classify with errors.Is.
var (
	// ConfigError is returned by a constructor when an attribute is out of
	// range. Fatal: the node never starts.
	ConfigError = errors.New("node: invalid configuration")

	// BindError is returned when a transport endpoint cannot be bound.
	// Fatal for that node.
	BindError = errors.New("node: bind failed")

	// DecodeError marks a malformed incoming packet. Local: the packet is
	// dropped and the node continues running.
	DecodeError = errors.New("node: malformed packet")

	// SelectorExhausted marks an active tick with no eligible peer. Local:
	// the send is deferred and the timer rescheduled.
	SelectorExhausted = errors.New("node: no eligible peer")

	// SendError marks a transport send failure. Local: logged, not retried.
	SendError = errors.New("node: send failed")

	// Stopped marks an event firing after the node's Stop was called.
	// Local: the event is a no-op.
	Stopped = errors.New("node: stopped")
)
