package simnet

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// ErrEmptyRange is returned by UniformInt when hiExclusive <= lo.
var ErrEmptyRange = errors.New("simnet: empty range")

// SeedFromLabel derives a reproducible int64 PRNG seed from a human-chosen
// label (e.g. "scenario-s4"), so a scenario file or operator-supplied
// --seed flag does not need to carry a raw, meaningless integer around.
// The same label always derives the same seed.
func SeedFromLabel(label string) int64 {
	sum := blake2b.Sum256([]byte(label))
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

// Rand is the pseudo-random stream capability required of the host
// simulator (spec §6). The core accepts it as an injected dependency
// rather than reaching for a package-level rand.Source, so tests can make
// a run fully deterministic by supplying a seeded instance.
type Rand interface {
	// UniformInt returns a uniform random integer in [lo, hiExclusive).
	UniformInt(lo, hiExclusive int) (int, error)
}
