package node

import (
	"math"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
)

// newMeanFixture wires up a MeanNode against a fresh Loop, binding its
// passive endpoint at addr and its active endpoint at an ephemeral port on
// the same host.
func newMeanFixture(t *testing.T, l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg MeanConfig) *MeanNode {
	t.Helper()
	passive, err := l.NewMemEndpoint(addr, 0)
	if err != nil {
		t.Fatalf("bind passive: %v", err)
	}
	active, err := l.NewMemEndpoint(simnet.Addr{Host: addr.Host, Port: addr.Port + 10000}, 0)
	if err != nil {
		t.Fatalf("bind active: %v", err)
	}
	n, err := NewMeanGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		t.Fatalf("NewMeanGossip: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return n
}

// TestMeanGossipTwoNodeSinglePair exercises the literal two-node scenario:
// m0={10,20}, MaxPackets=1 each. After the one push-pull pair completes,
// both nodes hold the exact mean (15), since the passive side replies with
// its pre-update estimate.
func TestMeanGossipTwoNodeSinglePair(t *testing.T) {
	l := simnet.NewLoop(1)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MeanConfig{MaxPackets: 1, Interval: time.Second, Epsilon: 1e-9}
	n1 := newMeanFixture(t, l, a1, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 10; return c }())
	n2 := newMeanFixture(t, l, a2, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 20; return c }())

	l.RunFor(5 * time.Second)

	if math.Abs(n1.W()-15) > 1e-9 {
		t.Fatalf("n1.W() = %v, want 15", n1.W())
	}
	if math.Abs(n2.W()-15) > 1e-9 {
		t.Fatalf("n2.W() = %v, want 15", n2.W())
	}
}

// TestMeanGossipSumPreservedAcrossPair verifies P1: a single completed
// push-pull pair preserves the sum of the two participants' estimates
// exactly.
func TestMeanGossipSumPreservedAcrossPair(t *testing.T) {
	l := simnet.NewLoop(7)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MeanConfig{MaxPackets: 1, Interval: time.Second, Epsilon: 1e-9}
	n1 := newMeanFixture(t, l, a1, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 3; return c }())
	n2 := newMeanFixture(t, l, a2, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 9; return c }())

	before := n1.W() + n2.W()
	l.RunFor(5 * time.Second)
	after := n1.W() + n2.W()

	if math.Abs(before-after) > 1e-9 {
		t.Fatalf("sum not preserved: before=%v after=%v", before, after)
	}
}

// TestMeanGossipConvergesAcrossCluster drives a 3-node cluster (S1's
// topology) long enough that all nodes converge within epsilon of one
// another.
func TestMeanGossipConvergesAcrossCluster(t *testing.T) {
	l := simnet.NewLoop(42)
	addrs := []simnet.Addr{
		{Host: "10.0.0.1", Port: 9},
		{Host: "10.0.0.2", Port: 9},
		{Host: "10.0.0.3", Port: 9},
	}
	estimates := []float64{1, 2, 3}

	cfg := MeanConfig{MaxPackets: 50, Interval: 100 * time.Millisecond, Epsilon: 1e-6}
	nodes := make([]*MeanNode, len(addrs))
	for i, addr := range addrs {
		c := cfg
		c.InitialEstimate = estimates[i]
		nodes[i] = newMeanFixture(t, l, addr, addrs, c)
	}

	l.RunFor(30 * time.Second)

	for i := 1; i < len(nodes); i++ {
		if math.Abs(nodes[i].W()-nodes[0].W()) > 1e-3 {
			t.Fatalf("node %d not converged: %v vs %v", i, nodes[i].W(), nodes[0].W())
		}
	}
}

// TestMeanGossipSentCountRespectsMaxPackets checks the active role never
// initiates more than MaxPackets exchanges even when run far beyond that.
func TestMeanGossipSentCountRespectsMaxPackets(t *testing.T) {
	l := simnet.NewLoop(3)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MeanConfig{MaxPackets: 4, Interval: 10 * time.Millisecond, Epsilon: 0}
	n1 := newMeanFixture(t, l, a1, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 1; return c }())
	_ = newMeanFixture(t, l, a2, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 100; return c }())

	l.RunFor(5 * time.Second)

	if n1.SentCount() > 4 {
		t.Fatalf("SentCount() = %d, want <= 4", n1.SentCount())
	}
}

// TestMeanGossipNeverConnectsToSelf verifies P5: every active-role Connect
// call targets some peer other than the node's own address.
func TestMeanGossipNeverConnectsToSelf(t *testing.T) {
	l := simnet.NewLoop(5)
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

	cfg := MeanConfig{MaxPackets: 20, Interval: 50 * time.Millisecond, Epsilon: 0, InitialEstimate: 1}
	n1, err := NewMeanGossip(a1, peers, passive, spy, l, l, cfg)
	if err != nil {
		t.Fatalf("NewMeanGossip: %v", err)
	}
	if err := n1.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = newMeanFixture(t, l, a2, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 2; return c }())
	_ = newMeanFixture(t, l, a3, peers, func() MeanConfig { c := cfg; c.InitialEstimate = 3; return c }())

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

// TestMeanGossipStopIsIdempotent exercises the Terminal transition (§4.6):
// Stop can be called more than once without error, and after it no further
// sends occur.
func TestMeanGossipStopIsIdempotent(t *testing.T) {
	l := simnet.NewLoop(1)
	a1 := simnet.Addr{Host: "10.0.0.1", Port: 9}
	a2 := simnet.Addr{Host: "10.0.0.2", Port: 9}
	peers := []simnet.Addr{a1, a2}

	cfg := MeanConfig{MaxPackets: 100, Interval: 10 * time.Millisecond, Epsilon: 0, InitialEstimate: 1}
	n1 := newMeanFixture(t, l, a1, peers, cfg)
	_ = newMeanFixture(t, l, a2, peers, cfg)

	l.RunFor(20 * time.Millisecond)
	if err := n1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := n1.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	sent := n1.SentCount()
	l.RunFor(5 * time.Second)
	if n1.SentCount() != sent {
		t.Fatalf("SentCount changed after Stop: %d -> %d", sent, n1.SentCount())
	}
}
