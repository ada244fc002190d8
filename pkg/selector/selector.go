// Package selector implements neighbour selection for the active gossip
// role: pick one address from a node's fixed neighbour set, excluding the
// node's own address and, for MultiphaseVarGossip, any peer the node does
// not currently consider connected.
package selector

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/gossipsim/pkg/simnet"
)

// ErrNoEligiblePeer is returned when every candidate neighbour was excluded
// by self-filtering or the connectivity filter. Callers map this into
// node.SelectorExhausted and, for MultiphaseVarGossip, defer and reschedule
// the active send rather than treating it as fatal.
var ErrNoEligiblePeer = errors.New("selector: no eligible peer")

// Filter reports whether addr is an eligible send target. A nil Filter
// admits every neighbour other than self.
type Filter func(addr simnet.Addr) bool

// Pick selects one address from neighbours using r, excluding self and any
// address rejected by filter. neighbours is never mutated or reordered.
func Pick(r simnet.Rand, neighbours []simnet.Addr, self simnet.Addr, filter Filter) (simnet.Addr, error) {
	eligible := make([]simnet.Addr, 0, len(neighbours))
	for _, n := range neighbours {
		if n == self {
			continue
		}
		if filter != nil && !filter(n) {
			continue
		}
		eligible = append(eligible, n)
	}

	if len(eligible) == 0 {
		return simnet.Addr{}, ErrNoEligiblePeer
	}

	i, err := r.UniformInt(0, len(eligible))
	if err != nil {
		return simnet.Addr{}, fmt.Errorf("selector: %w", err)
	}
	return eligible[i], nil
}
