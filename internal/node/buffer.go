package node

import "math/rand"

const bufferHighWater = 0.6

// BufferPolicy is the per-node ingest buffer's admission control
// (spec.md §4.13): below 60% fill everything is admitted, between 60%
// and 100% fill admission drops off linearly, and a ground-truth attack
// observation is always admitted regardless of fill.
type BufferPolicy struct {
	rng *rand.Rand
}

// NewBufferPolicy creates a policy with its own RNG source (one per node,
// mirroring internal/registry.PeersOf's per-validator rand.Rand so
// concurrent nodes never contend on the global lock).
func NewBufferPolicy(seed int64) *BufferPolicy {
	return &BufferPolicy{rng: rand.New(rand.NewSource(seed))}
}

// ShouldDrop reports whether an observation arriving when the buffer
// holds queueLen of capacity items should be dropped.
func (p *BufferPolicy) ShouldDrop(queueLen, capacity int, isAttack bool) bool {
	if isAttack || capacity <= 0 {
		return false
	}
	fill := float64(queueLen) / float64(capacity)
	if fill <= bufferHighWater {
		return false
	}
	if fill >= 1.0 {
		return true
	}
	dropProb := (fill - bufferHighWater) / (1.0 - bufferHighWater)
	return p.rng.Float64() < dropProb
}
