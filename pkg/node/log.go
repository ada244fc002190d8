package node

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
)

// ff formats a float with enough precision to satisfy the "at least 10
// significant digits" requirement on every logged numeric field.
func ff(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func ts(now time.Duration) string {
	return strconv.FormatFloat(now.Seconds(), 'f', 6, 64)
}

func logInit(now time.Duration, self simnet.Addr, m0 float64) {
	log.Printf("INIT %s %s %s", ts(now), self, ff(m0))
}

func logASend(now time.Duration, self, dest simnet.Addr, epoch *int, m0, w float64, w2 *float64) {
	switch {
	case epoch != nil && w2 != nil:
		log.Printf("ASEND %s %s %s %d %s %s %s", ts(now), self, dest, *epoch, ff(m0), ff(w), ff(*w2))
	case w2 != nil:
		log.Printf("ASEND %s %s %s %s %s %s", ts(now), self, dest, ff(m0), ff(w), ff(*w2))
	default:
		log.Printf("ASEND %s %s %s %s %s", ts(now), self, dest, ff(m0), ff(w))
	}
}

func logARecv(now time.Duration, self, from simnet.Addr, epoch *int, w float64, w2 *float64) {
	switch {
	case epoch != nil && w2 != nil:
		log.Printf("ARECV %s %s %s %d %s %s", ts(now), self, from, *epoch, ff(w), ff(*w2))
	case w2 != nil:
		log.Printf("ARECV %s %s %s %s %s", ts(now), self, from, ff(w), ff(*w2))
	default:
		log.Printf("ARECV %s %s %s %s", ts(now), self, from, ff(w))
	}
}

func logPRecv(now time.Duration, self, from simnet.Addr, epoch *int, m0, w, w2 float64) {
	if epoch != nil {
		log.Printf("PRECV %s %s %s %d %s %s %s", ts(now), self, from, *epoch, ff(m0), ff(w), ff(w2))
		return
	}
	log.Printf("PRECV %s %s %s %s %s %s", ts(now), self, from, ff(m0), ff(w), ff(w2))
}

func logPSend(now time.Duration, self, dest simnet.Addr, epoch *int, m0, w float64, w2 *float64) {
	switch {
	case epoch != nil && w2 != nil:
		log.Printf("PSEND %s %s %s %d %s %s %s", ts(now), self, dest, *epoch, ff(m0), ff(w), ff(*w2))
	case w2 != nil:
		log.Printf("PSEND %s %s %s %s %s %s", ts(now), self, dest, ff(m0), ff(w), ff(*w2))
	default:
		log.Printf("PSEND %s %s %s %s %s", ts(now), self, dest, ff(m0), ff(w))
	}
}

func logRecv(now time.Duration, self, peer simnet.Addr, w float64) {
	log.Printf("RECV %s %s %s %s", ts(now), self, peer, ff(w))
}

func logResp(now time.Duration, self, peer simnet.Addr, w float64) {
	log.Printf("RESP %s %s %s %s", ts(now), self, peer, ff(w))
}

func logUpdate(now time.Duration, self simnet.Addr, epoch *int, wOld, wNew, w2Old, w2New, variance float64) {
	if epoch != nil {
		log.Printf("UPDAT %s %s %d %s %s %s %s %s", ts(now), self, *epoch, ff(wOld), ff(wNew), ff(w2Old), ff(w2New), ff(variance))
		return
	}
	log.Printf("UPDAT %s %s %s %s", ts(now), self, ff(wOld), ff(wNew))
}

func logChange(now time.Duration, self, neighbour simnet.Addr, oldDecision, newDecision *bool) {
	log.Printf("CHANGE %s %s %s %s %s", ts(now), self, neighbour, decisionStr(oldDecision), decisionStr(newDecision))
}

func decisionStr(d *bool) string {
	if d == nil {
		return "unknown"
	}
	if *d {
		return "true"
	}
	return "false"
}

func logPhase(now time.Duration, self simnet.Addr, newEpoch int) {
	log.Printf("PHASE %s %s %d", ts(now), self, newEpoch)
}

// logDecodeDrop reports a malformed packet being dropped (§4.10: "Packet
// malformed: drop, log at debug"). cause is the wiremsg decode error;
// wrapping it in DecodeError lets a caller classify the drop with
// errors.Is without needing the wiremsg package itself.
func logDecodeDrop(tag string, self, from simnet.Addr, cause error) {
	log.Printf("[%s] %s: dropping malformed packet from %s: %v", tag, self, from, fmt.Errorf("%w: %v", DecodeError, cause))
}

// logNoEligiblePeer reports an active tick finding no eligible neighbour
// (§4.10: "No eligible peer: defer send, log").
func logNoEligiblePeer(tag string, self simnet.Addr) {
	log.Printf("[%s] %s: %v", tag, self, fmt.Errorf("select neighbour: %w", SelectorExhausted))
}

// logSendFailure reports a transport Connect or Send failure (§4.10/§7:
// "Transport send error: log. Local: log, continue.").
func logSendFailure(tag string, self, to simnet.Addr, cause error) {
	log.Printf("[%s] %s: send to %s failed: %v", tag, self, to, fmt.Errorf("%w: %v", SendError, cause))
}

func logCluster(now time.Duration, self simnet.Addr, active map[simnet.Addr]bool) {
	in, out := 0, 0
	for _, ok := range active {
		if ok {
			in++
		} else {
			out++
		}
	}
	log.Printf("CLUSTER %s %s in=%d out=%d", ts(now), self, in, out)
}
