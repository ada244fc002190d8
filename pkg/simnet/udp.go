package simnet

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/ratelimit"
)

// readDeadline bounds each blocking ReadFromUDP call so the listener
// goroutine can notice Close and exit, following the same
// deadline-poll-then-continue pattern the teacher lineage uses for its UDP
// listen loops.
const readDeadline = 1 * time.Second

// udpEndpoint adapts a real net.UDPConn to Endpoint. Its read loop runs on
// its own goroutine (a real socket has no choice), but every received
// datagram is handed to the owning Loop via postExternal before the
// node-facing callback runs, so node state is still only ever touched from
// the Loop's single processing goroutine (§5).
type udpEndpoint struct {
	loop    *Loop
	conn    *net.UDPConn
	addr    Addr
	recv    func(b []byte, from Addr)
	peer    *net.UDPAddr
	stopCh  chan struct{}
	limiter *ratelimit.IPRateLimiter
}

// ListenUDP binds a UDP socket at the requested port (0 for an ephemeral
// port) and starts its read loop. Falls back to a wildcard bind if binding
// the requested host fails, matching pkg/discovery/gossip.go's retry.
func (l *Loop) ListenUDP(host string, port uint16) (Endpoint, error) {
	return l.ListenUDPLimited(host, port, nil)
}

// ListenUDPLimited is ListenUDP with an optional per-source-IP rate
// limiter applied to the passive endpoint's read loop, so a live
// deployment's public listen port cannot be driven into a busy-loop by a
// misbehaving or hostile peer. A nil limiter disables limiting.
func (l *Loop) ListenUDPLimited(host string, port uint16, limiter *ratelimit.IPRateLimiter) (Endpoint, error) {
	laddr := &net.UDPAddr{IP: net.ParseIP(host), Port: int(port)}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		conn, err = net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
		if err != nil {
			return nil, fmt.Errorf("simnet: bind udp port %d: %w", port, err)
		}
	}

	ep := &udpEndpoint{
		loop:    l,
		conn:    conn,
		addr:    AddrFromUDP(conn.LocalAddr().(*net.UDPAddr)),
		stopCh:  make(chan struct{}),
		limiter: limiter,
	}
	go ep.readLoop()
	return ep, nil
}

func (e *udpEndpoint) readLoop() {
	buf := make([]byte, 65536)
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		e.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-e.stopCh:
				return
			default:
				log.Printf("simnet: udp read error on %s: %v", e.addr, err)
				continue
			}
		}

		if e.limiter != nil && !e.limiter.Allow(from.IP.String()) {
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		src := AddrFromUDP(from)
		e.loop.postExternal(func() {
			if e.recv != nil {
				e.recv(data, src)
			}
		})
	}
}

func (e *udpEndpoint) LocalAddr() Addr { return e.addr }

func (e *udpEndpoint) SetRecvCallback(fn func(b []byte, from Addr)) {
	e.recv = fn
}

// Connect records the peer for the next Send. A net.UDPConn obtained from
// ListenUDP cannot be re-dialed in place (UDP is connectionless), so this
// simply remembers the target and Send degrades to WriteToUDP — the same
// "remember the destination, write explicitly" approach
// pkg/discovery/gossip.go uses instead of socket-level connect.
func (e *udpEndpoint) Connect(to Addr) error {
	addr, err := to.UDPAddr()
	if err != nil {
		return err
	}
	e.peer = addr
	return nil
}

func (e *udpEndpoint) Send(b []byte) error {
	if e.peer == nil {
		return errors.New("simnet: Send called before Connect")
	}
	_, err := e.conn.WriteToUDP(b, e.peer)
	return err
}

func (e *udpEndpoint) SendTo(b []byte, to Addr) error {
	addr, err := to.UDPAddr()
	if err != nil {
		return err
	}
	_, err = e.conn.WriteToUDP(b, addr)
	return err
}

func (e *udpEndpoint) Close() error {
	close(e.stopCh)
	return e.conn.Close()
}
