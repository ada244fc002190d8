// Package scenarios builds and runs the literal end-to-end scenarios
// (S1-S5) against simnet.Loop, the Go-native analogue of the ns-3
// NodeContainer helpers (BasicGossipHelper, VarclustNodeHelper,
// MultiphaseVarclustNodeHelper) that installed one gossip application per
// simulated node. S6 is codec-only and lives entirely in
// pkg/wiremsg's tests.
package scenarios

import (
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/node"
	"github.com/atvirokodosprendimai/gossipsim/pkg/ratelimit"
	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
	"github.com/atvirokodosprendimai/gossipsim/pkg/telemetry"
)

// Names lists the runnable scenario identifiers, in spec order.
func Names() []string {
	return []string{"s1", "s2", "s3", "s4", "s5"}
}

// Result is a scenario's terminal report, printed by cmd/gossipsim. Final
// carries one telemetry.Snapshot per node so a caller holding a
// SnapshotPublisher can publish the scenario's end state without
// re-deriving it from Summary's free-form text.
type Result struct {
	Name    string
	Summary string
	Final   []telemetry.Snapshot
}

// Run dispatches to the named scenario, deriving its PRNG seed from the
// scenario's own name unless seedLabel overrides it.
func Run(name, seedLabel string) (Result, error) {
	if seedLabel == "" {
		seedLabel = "scenario-" + name
	}
	seed := simnet.SeedFromLabel(seedLabel)

	switch name {
	case "s1":
		return runS1(seed)
	case "s2":
		return runS2(seed)
	case "s3":
		return runS3(seed)
	case "s4":
		return runS4(seed)
	case "s5":
		return runS5(seed)
	default:
		return Result{}, fmt.Errorf("scenarios: unknown scenario %q", name)
	}
}

func meanNode(l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg node.MeanConfig) (*node.MeanNode, error) {
	passive, err := l.NewMemEndpoint(addr, 0)
	if err != nil {
		return nil, err
	}
	active, err := l.NewMemEndpoint(simnet.Addr{Host: addr.Host, Port: addr.Port + 10000}, 0)
	if err != nil {
		return nil, err
	}
	n, err := node.NewMeanGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		return nil, err
	}
	return n, n.Start()
}

func varNode(l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg node.VarConfig) (*node.VarNode, error) {
	passive, err := l.NewMemEndpoint(addr, 0)
	if err != nil {
		return nil, err
	}
	active, err := l.NewMemEndpoint(simnet.Addr{Host: addr.Host, Port: addr.Port + 10000}, 0)
	if err != nil {
		return nil, err
	}
	n, err := node.NewVarGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		return nil, err
	}
	return n, n.Start()
}

func multiphaseNode(l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg node.MultiphaseConfig) (*node.MultiphaseNode, error) {
	passive, err := l.NewMemEndpoint(addr, 0)
	if err != nil {
		return nil, err
	}
	active, err := l.NewMemEndpoint(simnet.Addr{Host: addr.Host, Port: addr.Port + 10000}, 0)
	if err != nil {
		return nil, err
	}
	n, err := node.NewMultiphaseVarGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		return nil, err
	}
	return n, n.Start()
}

func addrsFor(n int) []simnet.Addr {
	out := make([]simnet.Addr, n)
	for i := range out {
		out[i] = simnet.Addr{Host: fmt.Sprintf("10.0.0.%d", i+1), Port: 9}
	}
	return out
}

// runS1: MeanGossip, 3 nodes, m0={0,3,9}, MaxPackets=200, Interval=1s.
// Expected: every node's final w in [3.9, 4.1].
func runS1(seed int64) (Result, error) {
	l := simnet.NewLoop(seed)
	addrs := addrsFor(3)
	estimates := []float64{0, 3, 9}

	cfg := node.MeanConfig{MaxPackets: 200, Interval: time.Second, Epsilon: 1e-4}
	nodes := make([]*node.MeanNode, len(addrs))
	for i, addr := range addrs {
		c := cfg
		c.InitialEstimate = estimates[i]
		n, err := meanNode(l, addr, addrs, c)
		if err != nil {
			return Result{}, err
		}
		nodes[i] = n
	}

	l.RunFor(400 * time.Second)

	summary := "final w: "
	final := make([]telemetry.Snapshot, len(nodes))
	for i, n := range nodes {
		if i > 0 {
			summary += ", "
		}
		summary += fmt.Sprintf("%s=%.6f", addrs[i], n.W())
		final[i] = telemetry.Snapshot{Self: addrs[i].String(), Variant: "mean", W: n.W(), SentCount: n.SentCount()}
	}
	return Result{Name: "s1", Summary: summary, Final: final}, nil
}

// runS2: MeanGossip, 2 nodes, m0={10,20}, MaxPackets=1 each. After the
// one push-pull pair both nodes hold exactly 15.
func runS2(seed int64) (Result, error) {
	l := simnet.NewLoop(seed)
	addrs := addrsFor(2)

	cfg := node.MeanConfig{MaxPackets: 1, Interval: time.Second, Epsilon: 1e-9}
	c1 := cfg
	c1.InitialEstimate = 10
	c2 := cfg
	c2.InitialEstimate = 20

	n1, err := meanNode(l, addrs[0], addrs, c1)
	if err != nil {
		return Result{}, err
	}
	n2, err := meanNode(l, addrs[1], addrs, c2)
	if err != nil {
		return Result{}, err
	}

	l.RunFor(10 * time.Second)

	return Result{
		Name:    "s2",
		Summary: fmt.Sprintf("initiator=%.6f responder=%.6f", n1.W(), n2.W()),
		Final: []telemetry.Snapshot{
			{Self: addrs[0].String(), Variant: "mean", W: n1.W(), SentCount: n1.SentCount()},
			{Self: addrs[1].String(), Variant: "mean", W: n2.W(), SentCount: n2.SentCount()},
		},
	}, nil
}

// runS3: VarGossip, 4 nodes, m0={1,1,9,9}. After convergence every node's
// estimate_w ~ 5 and variance ~ 16.
func runS3(seed int64) (Result, error) {
	l := simnet.NewLoop(seed)
	addrs := addrsFor(4)
	estimates := []float64{1, 1, 9, 9}

	cfg := node.VarConfig{MaxPackets: 200, Interval: 200 * time.Millisecond, Epsilon: 1e-6}
	nodes := make([]*node.VarNode, len(addrs))
	for i, addr := range addrs {
		c := cfg
		c.InitialEstimate = estimates[i]
		n, err := varNode(l, addr, addrs, c)
		if err != nil {
			return Result{}, err
		}
		nodes[i] = n
	}

	l.RunFor(120 * time.Second)

	summary := ""
	final := make([]telemetry.Snapshot, len(nodes))
	for i, n := range nodes {
		if i > 0 {
			summary += ", "
		}
		summary += fmt.Sprintf("%s=(w=%.4f var=%.4f)", addrs[i], n.W(), n.Variance())
		final[i] = telemetry.Snapshot{Self: addrs[i].String(), Variant: "var", W: n.W(), W2: n.W2(), Variance: n.Variance(), SentCount: n.SentCount()}
	}
	return Result{Name: "s3", Summary: summary, Final: final}, nil
}

// runS4: MultiphaseVarGossip, 6 nodes in two clusters {0,0,0} / {10,10,10},
// EpochLength=20, MaxPackets=0 (unlimited), Interval=1s. After two epoch
// transitions each node's connectivity_active should match the co-cluster
// members only.
func runS4(seed int64) (Result, error) {
	l := simnet.NewLoop(seed)
	addrs := addrsFor(6)
	estimates := []float64{0, 0, 0, 10, 10, 10}

	cfg := node.MultiphaseConfig{Interval: time.Second, EpochLength: 20}
	nodes := make([]*node.MultiphaseNode, len(addrs))
	for i, addr := range addrs {
		c := cfg
		c.InitialEstimate = estimates[i]
		n, err := multiphaseNode(l, addr, addrs, c)
		if err != nil {
			return Result{}, err
		}
		nodes[i] = n
	}

	l.RunFor(60 * time.Second)

	summary := ""
	final := make([]telemetry.Snapshot, len(nodes))
	for i, n := range nodes {
		inCluster := 0
		for j, peer := range addrs {
			if j == i {
				continue
			}
			if n.ConnectivityActive(peer) {
				inCluster++
			}
		}
		if i > 0 {
			summary += ", "
		}
		summary += fmt.Sprintf("%s=(epoch=%d active_peers=%d)", addrs[i], n.CurrentEpoch(), inCluster)
		final[i] = telemetry.Snapshot{Self: addrs[i].String(), Variant: "multiphase", W: n.W(), W2: n.W2(), Variance: n.Variance(), Epoch: n.CurrentEpoch(), SentCount: n.SentCount()}
	}
	return Result{Name: "s4", Summary: summary, Final: final}, nil
}

// meanNodeUDP wires a MeanNode to real loopback UDP sockets instead of the
// in-memory fabric: the passive endpoint is rate-limited per source IP
// (§4.11), the active endpoint binds an unlimited ephemeral port for
// outbound exchanges and their replies.
func meanNodeUDP(l *simnet.Loop, addr simnet.Addr, peers []simnet.Addr, cfg node.MeanConfig, limiter *ratelimit.IPRateLimiter) (*node.MeanNode, error) {
	passive, err := l.ListenUDPLimited(addr.Host, addr.Port, limiter)
	if err != nil {
		return nil, err
	}
	active, err := l.ListenUDPLimited(addr.Host, 0, nil)
	if err != nil {
		return nil, err
	}
	n, err := node.NewMeanGossip(addr, peers, passive, active, l, l, cfg)
	if err != nil {
		return nil, err
	}
	return n, n.Start()
}

// RunLiveUDP runs the literal S2 two-node exchange (m0={10,20},
// MaxPackets=1) over real loopback UDP sockets guarded by a per-source-IP
// rate limiter, rather than simnet's in-memory fabric. Unlike the
// deterministic S1-S5 scenarios, delivery now depends on the real network
// stack instead of a virtual clock, so the run interleaves RunFor with
// short real sleeps to give asynchronous datagram arrivals a chance to
// reach the Loop's single processing goroutine before it decides there is
// nothing left to do.
func RunLiveUDP(seedLabel string) (Result, error) {
	if seedLabel == "" {
		seedLabel = "scenario-udp-demo"
	}
	seed := simnet.SeedFromLabel(seedLabel)
	l := simnet.NewLoop(seed)
	limiter := ratelimit.NewDefault()

	addrs := []simnet.Addr{
		{Host: "127.0.0.1", Port: 20201},
		{Host: "127.0.0.1", Port: 20202},
	}

	cfg := node.MeanConfig{MaxPackets: 1, Interval: time.Second, Epsilon: 1e-9}
	c1 := cfg
	c1.InitialEstimate = 10
	c2 := cfg
	c2.InitialEstimate = 20

	n1, err := meanNodeUDP(l, addrs[0], addrs, c1, limiter)
	if err != nil {
		return Result{}, err
	}
	n2, err := meanNodeUDP(l, addrs[1], addrs, c2, limiter)
	if err != nil {
		return Result{}, err
	}
	defer n1.Stop()
	defer n2.Stop()

	for i := 0; i < 20; i++ {
		l.RunFor(200 * time.Millisecond)
		time.Sleep(10 * time.Millisecond)
	}

	return Result{
		Name:    "udp-demo",
		Summary: fmt.Sprintf("initiator=%.6f responder=%.6f (live UDP transport)", n1.W(), n2.W()),
		Final: []telemetry.Snapshot{
			{Self: addrs[0].String(), Variant: "mean", W: n1.W(), SentCount: n1.SentCount()},
			{Self: addrs[1].String(), Variant: "mean", W: n2.W(), SentCount: n2.SentCount()},
		},
	}, nil
}

// runS5: single node A, EpochLength=5, receiving a packet tagged epoch=3
// while A itself is at epoch 0. Exercises the T-RECV trigger directly
// rather than waiting for a peer to reach epoch 3 naturally.
func runS5(seed int64) (Result, error) {
	l := simnet.NewLoop(seed)
	addrs := addrsFor(2)

	cfg := node.MultiphaseConfig{Interval: time.Second, EpochLength: 5, InitialEstimate: 7}
	a, err := multiphaseNode(l, addrs[0], addrs, cfg)
	if err != nil {
		return Result{}, err
	}

	before := a.CurrentEpoch()
	a.TriggerUpdateEpoch(l.Now(), 3)

	return Result{
		Name: "s5",
		Summary: fmt.Sprintf("epoch before=%d after=%d w_after_reset=%.6f",
			before, a.CurrentEpoch(), a.W()),
		Final: []telemetry.Snapshot{
			{Self: addrs[0].String(), Variant: "multiphase", W: a.W(), Epoch: a.CurrentEpoch(), SentCount: a.SentCount()},
		},
	}, nil
}
