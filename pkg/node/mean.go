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

// MeanNode runs the MeanGossip protocol: a single scalar aggregated by
// pairwise averaging over an active (initiator) and passive (responder)
// role sharing the same estimate.
type MeanNode struct {
	self  simnet.Addr
	peers []simnet.Addr

	passive simnet.Endpoint
	active  simnet.Endpoint
	clock   simnet.Clock
	rng     simnet.Rand
	cfg     MeanConfig

	m0        float64
	w, wOld   float64
	sentCount uint32

	timer    simnet.Handle
	hasTimer bool
	stopped  bool
}

// NewMeanGossip constructs a MeanNode. passive must be bound at self
// (BindError otherwise); active may be bound at an ephemeral port. The
// caller creates both endpoints; Stop closes them.
func NewMeanGossip(self simnet.Addr, peers []simnet.Addr, passive, active simnet.Endpoint, clock simnet.Clock, rng simnet.Rand, cfg MeanConfig) (*MeanNode, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if passive.LocalAddr() != self {
		return nil, fmt.Errorf("mean: passive endpoint bound at %s, want %s: %w", passive.LocalAddr(), self, BindError)
	}
	return &MeanNode{
		self:    self,
		peers:   peers,
		passive: passive,
		active:  active,
		clock:   clock,
		rng:     rng,
		cfg:     cfg,
		m0:      cfg.InitialEstimate,
		w:       cfg.InitialEstimate,
		wOld:    cfg.InitialEstimate,
	}, nil
}

// W returns the node's current estimate.
func (n *MeanNode) W() float64 { return n.w }

// SentCount returns the number of active-role initiations performed so far.
func (n *MeanNode) SentCount() uint32 { return n.sentCount }

func (n *MeanNode) Start() error {
	n.passive.SetRecvCallback(n.handlePassive)
	n.active.SetRecvCallback(n.handleActiveReply)
	logInit(n.clock.Now(), n.self, n.m0)
	n.scheduleNext(0)
	return nil
}

func (n *MeanNode) Stop() error {
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

func (n *MeanNode) Dispose() {}

func (n *MeanNode) scheduleNext(delay time.Duration) {
	n.timer = n.clock.Schedule(delay, n.tick)
	n.hasTimer = true
}

// tick is the active-role timer callback (§4.6). It always reschedules,
// even when locally converged, so a later passive update can re-open
// gossip (Open Question 1).
func (n *MeanNode) tick() {
	if n.stopped {
		return
	}

	if n.sentCount > 0 && math.Abs(n.w-n.wOld) < n.cfg.Epsilon {
		n.scheduleNext(n.cfg.Interval)
		return
	}

	dest, err := selector.Pick(n.rng, n.peers, n.self, nil)
	if err != nil {
		logNoEligiblePeer("Mean", n.self)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	if err := n.active.Connect(dest); err != nil {
		logSendFailure("Mean", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	msg := wiremsg.MeanMsg{W: n.w}
	if err := n.active.Send(msg.Encode()); err != nil {
		logSendFailure("Mean", n.self, dest, err)
		n.scheduleNext(n.cfg.Interval)
		return
	}

	logASend(n.clock.Now(), n.self, dest, nil, n.m0, n.w, nil)
	telemetry.RecordActiveSend("mean")
	n.sentCount++

	if n.sentCount < n.cfg.MaxPackets {
		n.scheduleNext(n.cfg.Interval)
	}
}

// handlePassive is the passive-role receive callback (§4.7): reply with
// the current estimate, then apply the update.
func (n *MeanNode) handlePassive(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeMean(b)
	if err != nil {
		logDecodeDrop("Mean", n.self, from, err)
		return
	}

	now := n.clock.Now()
	logRecv(now, n.self, from, msg.W)

	// Reply with the current estimate before folding the incoming value
	// in, so the initiator's eventual update and this node's own update
	// both average against the same pre-exchange pair of values (push-pull
	// mean preservation, P1).
	reply := wiremsg.MeanMsg{W: n.w}
	if err := n.passive.SendTo(reply.Encode(), from); err != nil {
		logSendFailure("Mean", n.self, from, err)
		return
	}
	logResp(now, n.self, from, n.w)

	wOld := n.w
	n.w = (n.w + msg.W) / 2
	n.wOld = wOld
	logUpdate(now, n.self, nil, wOld, n.w, 0, 0, 0)
	telemetry.RecordUpdate("mean", math.Abs(n.w-wOld))
}

// handleActiveReply is invoked when the active endpoint receives the
// responder's reply.
func (n *MeanNode) handleActiveReply(b []byte, from simnet.Addr) {
	if n.stopped {
		return
	}
	msg, err := wiremsg.DecodeMean(b)
	if err != nil {
		logDecodeDrop("Mean", n.self, from, err)
		return
	}

	now := n.clock.Now()
	logARecv(now, n.self, from, nil, msg.W, nil)
	telemetry.RecordActiveRecv("mean")

	wOld := n.w
	n.w = (n.w + msg.W) / 2
	n.wOld = wOld
	logUpdate(now, n.self, nil, wOld, n.w, 0, 0, 0)
	telemetry.RecordUpdate("mean", math.Abs(n.w-wOld))
}
