package node

import "github.com/atvirokodosprendimai/gossipsim/pkg/simnet"

// connectSpy wraps a simnet.Endpoint and records every address Connect was
// called with, so a test can assert on the active role's destination
// choices (P5: never self) without inspecting log output.
type connectSpy struct {
	simnet.Endpoint
	targets []simnet.Addr
}

func newConnectSpy(ep simnet.Endpoint) *connectSpy {
	return &connectSpy{Endpoint: ep}
}

func (s *connectSpy) Connect(to simnet.Addr) error {
	s.targets = append(s.targets, to)
	return s.Endpoint.Connect(to)
}
