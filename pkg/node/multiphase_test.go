package node

import (
	"math"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
)

func newMultiphaseFixture(t *testing.T, l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg MultiphaseConfig) *MultiphaseNode {
	t.Helper()
	passive, err := l.NewMemEndpoint(addr, 0)
	if err != nil {
		t.Fatalf("bind passive: %v", err)
	}
	active, err := l.NewMemEndpoint(simnet.Addr{Host: addr.Host, Port: addr.Port + 10000}, 0)
	if err != nil {
		t.Fatalf("bind active: %v", err)
	}
	n, err := NewMultiphaseVarGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		t.Fatalf("NewMultiphaseVarGossip: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return n
}

// TestMultiphaseEpochZeroActiveAllTrue checks the epoch-0 initial
// condition (§4.9 edge case): every peer starts eligible for active-role
// selection, even though nothing has been observed yet.
func TestMultiphaseEpochZeroActiveAllTrue(t *testing.T) {
	l := simnet.NewLoop(1)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MultiphaseConfig{Interval: time.Second, EpochLength: 10, InitialEstimate: 1}
	n1 := newMultiphaseFixture(t, l, a1, peers, cfg)

	if !n1.ConnectivityActive(a2) {
		t.Fatal("expected connectivity_active=true for every peer at epoch 0")
	}
	if n1.CurrentEpoch() != 0 {
		t.Fatalf("CurrentEpoch() = %d, want 0", n1.CurrentEpoch())
	}
}

// TestMultiphaseSinglePairPreservesSums mirrors the VarGossip/MeanGossip
// exact-preservation property for a single completed push-pull pair,
// confirming the reply-before-update ordering holds for this variant too.
func TestMultiphaseSinglePairPreservesSums(t *testing.T) {
	l := simnet.NewLoop(1)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MultiphaseConfig{MaxPackets: 1, Interval: time.Second, EpochLength: 1000}
	n1 := newMultiphaseFixture(t, l, a1, peers, func() MultiphaseConfig { c := cfg; c.InitialEstimate = 6; return c }())
	n2 := newMultiphaseFixture(t, l, a2, peers, func() MultiphaseConfig { c := cfg; c.InitialEstimate = 14; return c }())

	wSumBefore := n1.W() + n2.W()
	l.RunFor(5 * time.Second)
	wSumAfter := n1.W() + n2.W()

	if math.Abs(wSumBefore-wSumAfter) > 1e-9 {
		t.Fatalf("w sum not preserved across pair: before=%v after=%v", wSumBefore, wSumAfter)
	}
}

// TestMultiphaseEpochAdvancesOnSendCount checks that a node's epoch
// counter has left 0 once it has had time to send more than EpochLength
// messages. Only the epoch counter is asserted.
func TestMultiphaseEpochAdvancesOnSendCount(t *testing.T) {
	l := simnet.NewLoop(5)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MultiphaseConfig{Interval: 10 * time.Millisecond, EpochLength: 3, InitialEstimate: 7}
	n1 := newMultiphaseFixture(t, l, a1, peers, cfg)
	_ = newMultiphaseFixture(t, l, a2, peers, cfg)

	l.RunFor(200 * time.Millisecond)

	if n1.CurrentEpoch() == 0 {
		t.Fatal("expected epoch to advance after enough active sends")
	}
}

// TestMultiphaseUpdateEpochAdoptsHigherIncomingEpoch checks the T-RECV
// trigger in isolation: receiving a packet from a strictly higher epoch
// adopts that epoch and runs the reset sequence.
func TestMultiphaseUpdateEpochAdoptsHigherIncomingEpoch(t *testing.T) {
	l := simnet.NewLoop(1)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MultiphaseConfig{Interval: time.Second, EpochLength: 1000, InitialEstimate: 3}
	n1 := newMultiphaseFixture(t, l, a1, peers, cfg)

	n1.updateEpoch(l.Now(), 5)

	if n1.CurrentEpoch() != 5 {
		t.Fatalf("CurrentEpoch() = %d, want 5", n1.CurrentEpoch())
	}
	if math.Abs(n1.W()-n1.m0) > 1e-12 {
		t.Fatalf("W() = %v after reset, want m0 = %v", n1.W(), n1.m0)
	}

	// A lower or equal epoch must not move the counter backward.
	n1.updateEpoch(l.Now(), 2)
	if n1.CurrentEpoch() != 5 {
		t.Fatalf("CurrentEpoch() regressed to %d", n1.CurrentEpoch())
	}
}

// TestMultiphaseNeverConnectsToSelf verifies P5 for MultiphaseVarGossip:
// active-role Connect calls never target the node's own address, even once
// connectivity_active has been narrowed by epoch transitions.
func TestMultiphaseNeverConnectsToSelf(t *testing.T) {
	l := simnet.NewLoop(21)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	a3 := simnet.Addr{Host: "10.0.0.3", Port: 9}
	peers := []simnet.Addr{a1, a2, a3}

	passive, err := l.NewMemEndpoint(a1, 0)
	if err != nil {
		t.Fatalf("bind passive: %v", err)
	}
	activeEp, err := l.NewMemEndpoint(simnet.Addr{Host: a1.Host, Port: a1.Port + 10000}, 0)
	if err != nil {
		t.Fatalf("bind active: %v", err)
	}
	spy := newConnectSpy(activeEp)

	cfg := MultiphaseConfig{Interval: 20 * time.Millisecond, EpochLength: 5, InitialEstimate: 1}
	n1, err := NewMultiphaseVarGossip(a1, peers, passive, spy, l, l, cfg)
	if err != nil {
		t.Fatalf("NewMultiphaseVarGossip: %v", err)
	}
	if err := n1.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = newMultiphaseFixture(t, l, a2, peers, func() MultiphaseConfig { c := cfg; c.InitialEstimate = 5; return c }())
	_ = newMultiphaseFixture(t, l, a3, peers, func() MultiphaseConfig { c := cfg; c.InitialEstimate = 9; return c }())

	l.RunFor(3 * time.Second)

	if len(spy.targets) == 0 {
		t.Fatal("expected at least one Connect call")
	}
	for _, target := range spy.targets {
		if target == a1 {
			t.Fatalf("active role connected to itself (%v)", target)
		}
	}
}

// TestMultiphaseUnlimitedMaxPacketsKeepsSending checks that MaxPackets=0
// means unlimited for this variant, unlike MeanConfig/VarConfig.
func TestMultiphaseUnlimitedMaxPacketsKeepsSending(t *testing.T) {
	l := simnet.NewLoop(2)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MultiphaseConfig{Interval: 10 * time.Millisecond, EpochLength: 1000, InitialEstimate: 1}
	n1 := newMultiphaseFixture(t, l, a1, peers, cfg)
	_ = newMultiphaseFixture(t, l, a2, peers, cfg)

	l.RunFor(500 * time.Millisecond)

	if n1.SentCount() < 20 {
		t.Fatalf("SentCount() = %d, expected continued unlimited sending", n1.SentCount())
	}
}
