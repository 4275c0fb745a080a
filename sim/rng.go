package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a replicate. A program run twice under the same
// key and configuration produces identical results.
type SimulationKey int64

// NewSimulationKey wraps a seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Random stream names. Each stream is consumed by exactly one concern, so
// drawing more from one never shifts another.
const (
	// SubsystemEmissions drives emission timeline generation. It is seeded
	// with the key itself: every program of a replicate draws the same
	// emissions regardless of its methods.
	SubsystemEmissions = "emissions"

	// SubsystemLifecycle drives daily emission updates (intermittent
	// on/off days).
	SubsystemLifecycle = "lifecycle"
)

// SubsystemMethod names the stream owned by one method's company: sensor
// outcomes, quantification error, travel times, repair delays of the
// emissions it tags and its k-means territories.
func SubsystemMethod(name string) string {
	return "method_" + name
}

// PartitionedRNG hands out one *rand.Rand per named stream, all derived
// from a single SimulationKey. A stream's seed is the key for
// SubsystemEmissions and key XOR fnv1a64(name) for everything else.
//
// Not safe for concurrent use; each replicate goroutine owns its own.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates the streams for one replicate. Streams are
// built on first use.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first call.
// Later calls return the same instance, continuing its sequence.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	r, ok := p.streams[name]
	if !ok {
		r = rand.New(rand.NewSource(p.seedFor(name)))
		p.streams[name] = r
	}
	return r
}

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemEmissions {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the replicate's key.
func (p *PartitionedRNG) Key() SimulationKey { return p.key }

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
