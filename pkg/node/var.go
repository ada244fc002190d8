package node

import (
	"fmt"
	"math"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/selector"
	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
	"github.com/atvirokodosprendimai/gossipsim/pkg/telemetry"
	"github.com/atvirokodosprendimai/gossipsim/pkg/wiremsg"
)

// VarNode runs the VarGossip protocol: two correlated scalars (w and w²)
// aggregated by pairwise averaging, from which a global variance estimate
// is derived, plus a per-neighbour connectivity decision that is purely
// observable output (it never gates peer selection in this variant).
type VarNode struct {
	self  simnet.Addr
	peers []simnet.Addr

	passive simnet.Endpoint
	active  simnet.Endpoint
	clock   simnet.Clock
	rng     simnet.Rand
	cfg     VarConfig

	m0          float64
	w, wOld     float64
	w2, w2Old   float64
	sentCount   uint32
	neighbourM0 map[simnet.Addr]float64
	connectivity map[simnet.Addr]bool

	timer    simnet.Handle
	hasTimer bool
	stopped  bool
}

func NewVarGossip(self simnet.Addr, peers []simnet.Addr, passive, active simnet.Endpoint, clock simnet.Clock, rng simnet.Rand, cfg VarConfig) (*VarNode, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if passive.LocalAddr() != self {
		return nil, fmt.Errorf("var: passive endpoint bound at %s, want %s: %w", passive.LocalAddr(), self, BindError)
	}
	return &VarNode{
		self:        self,
		peers:       peers,
		passive:     passive,
		active:      active,
		clock:       clock,
		rng:         rng,
		cfg:         cfg,
		m0:          cfg.InitialEstimate,
		w:           cfg.InitialEstimate,
		wOld:        cfg.InitialEstimate,
		w2:          cfg.InitialEstimate * cfg.InitialEstimate,
		w2Old:       cfg.InitialEstimate * cfg.InitialEstimate,
		neighbourM0: make(map[simnet.Addr]float64),
		connectivity: make(map[simnet.Addr]bool),
	}, nil
}

func (n *VarNode) W() float64        { return n.w }
func (n *VarNode) W2() float64       { return n.w2 }
func (n *VarNode) Variance() float64 { return n.w2 - n.w*n.w }

// Connectivity reports the decision for neighbour addr and whether any
// decision has been recorded for it yet (false, false before the first
// observation — spec's "unknown" state).
func (n *VarNode) Connectivity(addr simnet.Addr) (decision bool, known bool) {
	d, ok := n.connectivity[addr]
	return d, ok
}

func (n *VarNode) SentCount() uint32 { return n.sentCount }

func (n *VarNode) Start() error {
	n.passive.SetRecvCallback(n.handlePassive)
	n.active.SetRecvCallback(n.handleActiveReply)
	logInit(n.clock.Now(), n.self, n.m0)
	n.scheduleNext(n.cfg.InitialDelay)
	return nil
}

func (n *VarNode) Stop() error {
	if n.stopped {
		return nil
	}
	n.stopped = true
	if n.hasTimer {
		n.clock.Cancel(n.timer)
	}
	n.passive.Close()
	n.active.Close()
	return nil
}

func (n *VarNode) Dispose() {}

func (n *VarNode) scheduleNext(delay time.Duration) {
	n.timer = n.clock.Schedule(delay, n.tick)
	n.hasTimer = true
}

func (n *VarNode) converged() bool {
	return n.sentCount > 0 &&
		math.Abs(n.w-n.wOld) < n.cfg.Epsilon &&
		math.Abs(n.w2-n.w2Old) < n.cfg.Epsilon
}

func (n *VarNode) tick() {
	if n.stopped {
		return
	}

	if n.converged() {
		n.scheduleNext(n.cfg.Interval)
		return
	}

	dest, err := selector.Pick(n.rng, n.peers, n.self, nil)
	if err != nil {
		logNoEligiblePeer("Var", n.self)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	if err := n.active.Connect(dest); err != nil {
		logSendFailure("Var", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	msg := wiremsg.VarMsg{M0: n.m0, W: n.w, W2: n.w2}
	if err := n.active.Send(msg.Encode()); err != nil {
		logSendFailure("Var", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	w2 := n.w2
	logASend(n.clock.Now(), n.self, dest, nil, n.m0, n.w, &w2)
	telemetry.RecordActiveSend("var")
	n.sentCount++

	if n.sentCount < n.cfg.MaxPackets {
		n.scheduleNext(n.cfg.Interval)
	}
}

func (n *VarNode) applyUpdate(now time.Duration, peerW, peerW2 float64) {
	wOld, w2Old := n.w, n.w2
	n.w = (n.w + peerW) / 2
	n.w2 = (n.w2 + peerW2) / 2
	n.wOld, n.w2Old = wOld, w2Old
	logUpdate(now, n.self, nil, wOld, n.w, w2Old, n.w2, n.Variance())
	telemetry.RecordUpdate("var", math.Abs(n.w-wOld))
}

// updateConnectivity runs the per-neighbour connectivity decision (§4.9)
// against every neighbour whose m0 has been observed at least once,
// writing directly into connectivity_map (VarGossip's decision is
// immediately effective but purely observable).
func (n *VarNode) updateConnectivity(now time.Duration) {
	variance := n.Variance()
	if variance < 0 {
		variance = 0
	}
	band := math.Sqrt(variance)

	for addr, peerM0 := range n.neighbourM0 {
		decision := math.Abs(n.m0-peerM0) <= band
		old, known := n.connectivity[addr]
		n.connectivity[addr] = decision
		if !known || old != decision {
			var oldPtr *bool
			if known {
				oldPtr = &old
			}
			newPtr := decision
			logChange(now, n.self, addr, oldPtr, &newPtr)
		}
	}
}

func (n *VarNode) handlePassive(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeVar(b)
	if err != nil {
		logDecodeDrop("Var", n.self, from, err)
		return
	}

	now := n.clock.Now()
	logPRecv(now, n.self, from, nil, msg.M0, msg.W, msg.W2)
	telemetry.RecordPassiveRecv("var")

	n.neighbourM0[from] = msg.M0

	// Reply with the current (pre-update) estimates, then update: this
	// keeps a single push-pull pair exactly mean-preserving (P1), matching
	// the worked two-node scenario.
	reply := wiremsg.VarMsg{M0: n.m0, W: n.w, W2: n.w2}
	if err := n.passive.SendTo(reply.Encode(), from); err != nil {
		logSendFailure("Var", n.self, from, err)
		return
	}
	w2 := n.w2
	logPSend(now, n.self, from, nil, n.m0, n.w, &w2)
	telemetry.RecordPassiveSend("var")

	n.applyUpdate(now, msg.W, msg.W2)
	n.updateConnectivity(now)
}

func (n *VarNode) handleActiveReply(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeVar(b)
	if err != nil {
		logDecodeDrop("Var", n.self, from, err)
		return
	}

	now := n.clock.Now()
	w2 := msg.W2
	logARecv(now, n.self, from, nil, msg.W, &w2)
	telemetry.RecordActiveRecv("var")

	n.neighbourM0[from] = msg.M0
	n.applyUpdate(now, msg.W, msg.W2)
	n.updateConnectivity(now)
}
