// Package simnet defines the narrow scheduler/datagram/PRNG contract the
// gossip node core requires of its host simulator (spec §6), and ships one
// concrete, in-process implementation of that contract: Loop, a
// single-goroutine deterministic event queue good enough to drive unit
// tests and the demonstration command in cmd/gossipsim. Loop is
// scaffolding, not a general discrete-event network simulator — the real
// one is an external collaborator this repository does not implement.
package simnet

import (
	"container/heap"
	"math/rand"
	"time"
)

type timerEvent struct {
	at        time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	index     int
}

type eventQueue []*timerEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	// Ties broken by insertion order, matching the simulator's stable
	// policy assumed in spec §5.
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x any) {
	e := x.(*timerEvent)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Loop is a deterministic, single-threaded discrete-event scheduler plus
// an in-memory datagram fabric. All callbacks — timers and datagram
// deliveries alike — run on the goroutine that calls RunFor/RunUntilIdle, one at a
// time to completion, matching the cooperative scheduling model of spec
// §5: node state is never touched concurrently.
type Loop struct {
	now     time.Duration
	seq     uint64
	q       eventQueue
	rng     *rand.Rand
	sockets map[Addr]*memEndpoint

	// external carries callbacks posted from other goroutines (a real UDP
	// read loop, see udp.go) onto the single event-processing goroutine.
	external chan func()
}

// NewLoop creates a Loop seeded deterministically from seed, so a run built
// against it is fully reproducible.
func NewLoop(seed int64) *Loop {
	return &Loop{
		rng:      rand.New(rand.NewSource(seed)),
		sockets:  make(map[Addr]*memEndpoint),
		external: make(chan func(), 256),
	}
}

// Now implements Clock.
func (l *Loop) Now() time.Duration { return l.now }

// Schedule implements Clock.
func (l *Loop) Schedule(delay time.Duration, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	e := &timerEvent{at: l.now + delay, seq: l.seq, fn: fn}
	l.seq++
	heap.Push(&l.q, e)
	return Handle(e.seq)
}

// Cancel implements Clock. Looking up by handle (== seq) is O(n) but event
// queues in test and demo runs are small; a stopped node cancels at most
// one pending event (§4.6 Terminal transition).
func (l *Loop) Cancel(h Handle) {
	for _, e := range l.q {
		if uint64(h) == e.seq {
			e.cancelled = true
			return
		}
	}
}

// UniformInt implements Rand.
func (l *Loop) UniformInt(lo, hiExclusive int) (int, error) {
	if hiExclusive <= lo {
		return 0, ErrEmptyRange
	}
	return lo + l.rng.Intn(hiExclusive-lo), nil
}

// drainExternal pulls any callbacks posted from other goroutines onto the
// loop's own goroutine and runs them immediately, preserving the
// single-writer discipline before events resume processing.
func (l *Loop) drainExternal() {
	for {
		select {
		case fn := <-l.external:
			fn()
		default:
			return
		}
	}
}

// postExternal is used by udp.go's read-loop goroutine to hand a received
// datagram back to the Loop's single processing goroutine.
func (l *Loop) postExternal(fn func()) {
	l.external <- fn
}

// RunFor advances simulated time by d, executing every event scheduled to
// fire at or before now+d, in monotonic time order.
func (l *Loop) RunFor(d time.Duration) {
	deadline := l.now + d
	for {
		l.drainExternal()
		if len(l.q) == 0 {
			l.now = deadline
			return
		}
		next := l.q[0]
		if next.at > deadline {
			l.now = deadline
			return
		}
		heap.Pop(&l.q)
		l.now = next.at
		if next.cancelled {
			continue
		}
		next.fn()
	}
}

// RunUntilIdle runs events until the queue is empty (and no external
// callback is pending), useful for scenarios with a bounded MaxPackets
// where the run naturally terminates.
func (l *Loop) RunUntilIdle(maxAdvance time.Duration) {
	deadline := l.now + maxAdvance
	for len(l.q) > 0 && l.now < deadline {
		l.drainExternal()
		if len(l.q) == 0 {
			return
		}
		next := heap.Pop(&l.q).(*timerEvent)
		l.now = next.at
		if next.cancelled {
			continue
		}
		next.fn()
	}
	l.drainExternal()
}
