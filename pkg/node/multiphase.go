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

// MultiphaseNode runs MultiphaseVarGossip: VarGossip's pairwise averaging
// of (w, w²) run across fixed-length epochs. Connectivity decisions made
// during an epoch become the peer-selection filter for the next one, so
// the neighbour graph coarsens into clusters over time.
type MultiphaseNode struct {
	self  simnet.Addr
	peers []simnet.Addr

	passive simnet.Endpoint
	active  simnet.Endpoint
	clock   simnet.Clock
	rng     simnet.Rand
	cfg     MultiphaseConfig

	m0        float64
	w, wOld   float64
	w2, w2Old float64
	sentCount uint32

	currentEpoch      int
	messagesThisEpoch uint32
	changedThisEpoch  bool

	neighbourM0           map[simnet.Addr]float64
	connectivityActive    map[simnet.Addr]bool
	connectivityTentative map[simnet.Addr]bool

	timer    simnet.Handle
	hasTimer bool
	stopped  bool
}

func NewMultiphaseVarGossip(self simnet.Addr, peers []simnet.Addr, passive, active simnet.Endpoint, clock simnet.Clock, rng simnet.Rand, cfg MultiphaseConfig) (*MultiphaseNode, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if passive.LocalAddr() != self {
		return nil, fmt.Errorf("multiphase: passive endpoint bound at %s, want %s: %w", passive.LocalAddr(), self, BindError)
	}

	n := &MultiphaseNode{
		self:                  self,
		peers:                 peers,
		passive:               passive,
		active:                active,
		clock:                 clock,
		rng:                   rng,
		cfg:                   cfg,
		m0:                    cfg.InitialEstimate,
		w:                     cfg.InitialEstimate,
		wOld:                  cfg.InitialEstimate,
		w2:                    cfg.InitialEstimate * cfg.InitialEstimate,
		w2Old:                 cfg.InitialEstimate * cfg.InitialEstimate,
		neighbourM0:           make(map[simnet.Addr]float64),
		connectivityActive:    make(map[simnet.Addr]bool),
		connectivityTentative: make(map[simnet.Addr]bool),
	}

	// Epoch-0 initial conditions (§4.9 edge case): no neighbour is excluded
	// from peer selection yet, but a neighbour that never talks to us is
	// dropped at the first boundary.
	for _, p := range peers {
		if p == self {
			continue
		}
		n.connectivityActive[p] = true
		n.connectivityTentative[p] = false
	}

	return n, nil
}

func (n *MultiphaseNode) W() float64        { return n.w }
func (n *MultiphaseNode) W2() float64       { return n.w2 }
func (n *MultiphaseNode) Variance() float64 { return n.w2 - n.w*n.w }
func (n *MultiphaseNode) CurrentEpoch() int { return n.currentEpoch }
func (n *MultiphaseNode) SentCount() uint32 { return n.sentCount }

// ConnectivityActive reports this epoch's peer-selection filter for addr.
func (n *MultiphaseNode) ConnectivityActive(addr simnet.Addr) bool {
	return n.connectivityActive[addr]
}

func (n *MultiphaseNode) Start() error {
	n.passive.SetRecvCallback(n.handlePassive)
	n.active.SetRecvCallback(n.handleActiveReply)

	now := n.clock.Now()
	logInit(now, n.self, n.m0)
	// Epoch 0 is a boundary too (I3): log it, but without the generic
	// tentative->active copy, since epoch 0's active map is seeded
	// all-true rather than derived from the all-false tentative map.
	logPhase(now, n.self, n.currentEpoch)
	telemetry.RecordPhase("multiphase")
	logCluster(now, n.self, n.connectivityActive)

	n.scheduleNext(n.cfg.InitialDelay)
	return nil
}

func (n *MultiphaseNode) Stop() error {
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

func (n *MultiphaseNode) Dispose() {}

func (n *MultiphaseNode) scheduleNext(delay time.Duration) {
	n.timer = n.clock.Schedule(delay, n.tick)
	n.hasTimer = true
}

// startEpoch executes the six-step boundary sequence (§4.8) for every
// trigger but the initial epoch 0, which Start handles directly.
func (n *MultiphaseNode) startEpoch(now time.Duration) {
	n.messagesThisEpoch = 0

	for addr, tentative := range n.connectivityTentative {
		n.connectivityActive[addr] = tentative
	}

	n.w = n.m0
	n.wOld = n.w
	n.w2 = n.w * n.w
	n.w2Old = n.w2

	n.changedThisEpoch = false

	logPhase(now, n.self, n.currentEpoch)
	telemetry.RecordPhase("multiphase")
	logCluster(now, n.self, n.connectivityActive)
}

// updateEpoch implements the T-RECV trigger: adopt a peer's epoch if it is
// strictly ahead of ours, then run the boundary sequence.
func (n *MultiphaseNode) updateEpoch(now time.Duration, epoch int) {
	if epoch > n.currentEpoch {
		n.currentEpoch = epoch
		n.startEpoch(now)
	}
}

// TriggerUpdateEpoch exposes the T-RECV trigger directly, for scenarios
// that demonstrate the epoch-jump-on-receive behavior (S5) without
// waiting for a real peer to reach a higher epoch on its own.
func (n *MultiphaseNode) TriggerUpdateEpoch(now time.Duration, epoch int) {
	n.updateEpoch(now, epoch)
}

func (n *MultiphaseNode) activeFilter(addr simnet.Addr) bool {
	return n.connectivityActive[addr]
}

// tick is the active-role timer callback. Unlike MeanGossip/VarGossip, it
// never skips a send on epsilon convergence; it runs a fixed number of
// messages per epoch instead (§4.5).
func (n *MultiphaseNode) tick() {
	if n.stopped {
		return
	}

	dest, err := selector.Pick(n.rng, n.peers, n.self, n.activeFilter)
	if err != nil {
		// SelectorExhausted: defer the send and reschedule (§4.10).
		logNoEligiblePeer("Multiphase", n.self)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	if err := n.active.Connect(dest); err != nil {
		logSendFailure("Multiphase", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	msg := wiremsg.EpochMsg{Epoch: n.currentEpoch, M0: n.m0, W: n.w, W2: n.w2}
	if err := n.active.Send(msg.Encode()); err != nil {
		logSendFailure("Multiphase", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	now := n.clock.Now()
	epoch := n.currentEpoch
	w2 := n.w2
	logASend(now, n.self, dest, &epoch, n.m0, n.w, &w2)
	telemetry.RecordActiveSend("multiphase")
	n.sentCount++

	reschedule := n.cfg.MaxPackets == 0 || n.sentCount < n.cfg.MaxPackets

	n.messagesThisEpoch++
	if n.messagesThisEpoch >= n.cfg.EpochLength {
		n.currentEpoch++
		n.startEpoch(now)
	}

	if reschedule {
		n.scheduleNext(n.cfg.Interval)
	}
}

func (n *MultiphaseNode) applyUpdate(now time.Duration, peerW, peerW2 float64) {
	wOld, w2Old := n.w, n.w2
	n.w = (n.w + peerW) / 2
	n.w2 = (n.w2 + peerW2) / 2
	n.wOld, n.w2Old = wOld, w2Old

	epoch := n.currentEpoch
	logUpdate(now, n.self, &epoch, wOld, n.w, w2Old, n.w2, n.Variance())
	telemetry.RecordUpdate("multiphase", math.Abs(n.w-wOld))
}

// updateConnectivityTentative runs the per-neighbour connectivity
// decision (§4.9) against every neighbour whose m0 has been observed,
// writing into connectivity_tentative so it takes effect at the NEXT
// epoch boundary, and flags changed_this_epoch on any flip.
func (n *MultiphaseNode) updateConnectivityTentative(now time.Duration) {
	variance := n.Variance()
	if variance < 0 {
		variance = 0
	}
	band := math.Sqrt(variance)

	for addr, peerM0 := range n.neighbourM0 {
		decision := math.Abs(n.m0-peerM0) <= band
		old, known := n.connectivityTentative[addr]
		n.connectivityTentative[addr] = decision
		if !known || old != decision {
			n.changedThisEpoch = true
			var oldPtr *bool
			if known {
				oldPtr = &old
			}
			newPtr := decision
			logChange(now, n.self, addr, oldPtr, &newPtr)
		}
	}
}

func (n *MultiphaseNode) handlePassive(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeEpoch(b)
	if err != nil {
		logDecodeDrop("Multiphase", n.self, from, err)
		return
	}

	now := n.clock.Now()
	epoch := msg.Epoch
	logPRecv(now, n.self, from, &epoch, msg.M0, msg.W, msg.W2)
	telemetry.RecordPassiveRecv("multiphase")

	// Reset-then-apply (Open Question 3): adopt the sender's epoch and run
	// the boundary sequence BEFORE folding the triggering packet's payload
	// into the (now reset) estimates.
	n.updateEpoch(now, msg.Epoch)
	n.neighbourM0[from] = msg.M0

	// Reply with the current (post-reset, pre-update) estimates, then
	// update: this keeps a single push-pull pair exactly mean-preserving
	// (P1), matching the worked two-node scenario.
	reply := wiremsg.EpochMsg{Epoch: n.currentEpoch, M0: n.m0, W: n.w, W2: n.w2}
	if err := n.passive.SendTo(reply.Encode(), from); err != nil {
		logSendFailure("Multiphase", n.self, from, err)
		return
	}
	replyEpoch := n.currentEpoch
	w2 := n.w2
	logPSend(now, n.self, from, &replyEpoch, n.m0, n.w, &w2)
	telemetry.RecordPassiveSend("multiphase")

	n.applyUpdate(now, msg.W, msg.W2)
	n.updateConnectivityTentative(now)
}

func (n *MultiphaseNode) handleActiveReply(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeEpoch(b)
	if err != nil {
		logDecodeDrop("Multiphase", n.self, from, err)
		return
	}

	now := n.clock.Now()
	epoch := msg.Epoch
	w2 := msg.W2
	logARecv(now, n.self, from, &epoch, msg.W, &w2)
	telemetry.RecordActiveRecv("multiphase")

	n.updateEpoch(now, msg.Epoch)

	n.neighbourM0[from] = msg.M0
	n.applyUpdate(now, msg.W, msg.W2)
	n.updateConnectivityTentative(now)
}
