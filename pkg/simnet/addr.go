package simnet

import (
	"fmt"
	"net"
	"strconv"
)

// Addr is a transport-agnostic peer address: a host string plus a UDP-style
// port. It is comparable, so it can key a map the way the rest of this
// package uses it (connectivity maps, neighbour-measurement tables).
type Addr struct {
	Host string
	Port uint16
}

// String renders the address the way the log tags in this package expect:
// a bare host when the port is zero (most test fixtures identify peers by
// host alone), otherwise host:port.
func (a Addr) String() string {
	if a.Port == 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// UDPAddr converts to a *net.UDPAddr for use against a real socket.
func (a Addr) UDPAddr() (*net.UDPAddr, error) {
	ip := net.ParseIP(a.Host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", a.Host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", a.Host, err)
		}
		ip = resolved.IP
	}
	return &net.UDPAddr{IP: ip, Port: int(a.Port)}, nil
}

// AddrFromUDP converts a *net.UDPAddr into an Addr.
func AddrFromUDP(u *net.UDPAddr) Addr {
	if u == nil {
		return Addr{}
	}
	return Addr{Host: u.IP.String(), Port: uint16(u.Port)}
}
