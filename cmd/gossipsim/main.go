// gossipsim runs the literal end-to-end scenarios (S1-S5) from the gossip
// aggregation protocols (MeanGossip, VarGossip, MultiphaseVarGossip)
// against the in-process simnet.Loop, and optionally exposes live
// OpenTelemetry metrics/logs and a Redis-backed observation snapshot for
// a dashboard to poll.
//
// Usage:
//
//	gossipsim -scenario s1
//	gossipsim -scenario s4 -seed my-custom-run -redis 127.0.0.1:6379
//	gossipsim -udp
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	gossipotel "github.com/atvirokodosprendimai/gossipsim/pkg/otel"
	"github.com/atvirokodosprendimai/gossipsim/pkg/telemetry"
	"golang.org/x/term"

	"github.com/atvirokodosprendimai/gossipsim/cmd/gossipsim/scenarios"
)

func main() {
	scenario := flag.String("scenario", "s1", fmt.Sprintf("scenario to run (%s)", strings.Join(scenarios.Names(), ", ")))
	seedLabel := flag.String("seed", "", "PRNG seed label (derived from -scenario if empty)")
	redisAddr := flag.String("redis", "", "Redis/Dragonfly address for observational snapshots (disabled if empty)")
	interactiveSeed := flag.Bool("prompt-seed", false, "prompt for an additional seed secret on the terminal (no echo)")
	udpDemo := flag.Bool("udp", false, "ignore -scenario and run the two-node MeanGossip exchange over real rate-limited loopback UDP sockets instead of the in-memory fabric")
	flag.Parse()

	ctx := context.Background()
	otelShutdown, err := gossipotel.Init(ctx, "gossipsim", "dev")
	if err != nil {
		log.Printf("WARNING: OTel setup failed: %v — telemetry disabled", err)
	}
	defer otelShutdown(ctx)

	label := *seedLabel
	if *interactiveSeed {
		secret, err := promptSeedSecret()
		if err != nil {
			log.Fatalf("reading seed secret: %v", err)
		}
		if secret != "" {
			label = label + ":" + secret
		}
	}

	var publisher *telemetry.SnapshotPublisher
	if *redisAddr != "" {
		publisher, err = telemetry.NewSnapshotPublisher(*redisAddr)
		if err != nil {
			log.Printf("WARNING: snapshot publisher disabled: %v", err)
		} else {
			defer publisher.Close()
		}
	}

	runName := *scenario
	var result scenarios.Result
	if *udpDemo {
		runName = "udp-demo"
		result, err = scenarios.RunLiveUDP(label)
	} else {
		result, err = scenarios.Run(*scenario, label)
	}
	if err != nil {
		log.Fatalf("scenario %s: %v", runName, err)
	}

	log.Printf("scenario %s complete: %s", result.Name, result.Summary)

	if publisher != nil {
		publishFinalSnapshots(ctx, publisher, result.Final)
	}
}

// publishFinalSnapshots writes the scenario's terminal per-node state to
// Redis, stamping each with the current time since scenarios themselves
// never touch wall-clock time (they only ever advance the simulated one).
func publishFinalSnapshots(ctx context.Context, publisher *telemetry.SnapshotPublisher, snaps []telemetry.Snapshot) {
	for _, snap := range snaps {
		snap.ObservedAt = time.Now()
		if err := publisher.Publish(ctx, snap); err != nil {
			log.Printf("WARNING: snapshot publish failed for %s: %v", snap.Self, err)
		}
	}
}

// promptSeedSecret reads a single line from the controlling terminal
// without echoing it, following the no-echo prompt idiom
// golang.org/x/term provides for credential entry. Falls back to a plain
// buffered read when stdin is not a terminal (e.g. piped input in CI).
func promptSeedSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "seed secret (hidden): ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
