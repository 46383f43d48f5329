// Package registry is the Node Registry (C2): a fixed-for-the-run view of
// which ASes are PoP validators versus observers, and the effective
// consensus threshold derived from the validator count.
package registry

import (
	"math/rand"
	"sort"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Registry answers validator/observer/peer queries built once at startup
// from the (out-of-scope) dataset collaborator's classification.
type Registry struct {
	validators []models.ASN
	observers  []models.ASN
	isValidator map[models.ASN]bool
	threshold  int
}

// New builds a Registry from a classification and the configured T_MIN/T_CAP.
// Threshold T = max(T_MIN, min(floor(N_validators/3)+1, T_CAP)), spec.md §4.2.
func New(classification models.Classification, tMin, tCap int) *Registry {
	r := &Registry{
		isValidator: make(map[models.ASN]bool, len(classification)),
	}
	for as, isVal := range classification {
		r.isValidator[as] = isVal
		if isVal {
			r.validators = append(r.validators, as)
		} else {
			r.observers = append(r.observers, as)
		}
	}
	sort.Slice(r.validators, func(i, j int) bool { return r.validators[i] < r.validators[j] })
	sort.Slice(r.observers, func(i, j int) bool { return r.observers[i] < r.observers[j] })

	threshold := len(r.validators)/3 + 1
	if threshold > tCap {
		threshold = tCap
	}
	if threshold < tMin {
		threshold = tMin
	}
	r.threshold = threshold
	return r
}

// IsValidator reports whether as runs PoP consensus.
func (r *Registry) IsValidator(as models.ASN) bool {
	return r.isValidator[as]
}

// Validators returns every validator AS, in ascending order.
func (r *Registry) Validators() []models.ASN {
	out := make([]models.ASN, len(r.validators))
	copy(out, r.validators)
	return out
}

// Observers returns every observer AS, in ascending order.
func (r *Registry) Observers() []models.ASN {
	out := make([]models.ASN, len(r.observers))
	copy(out, r.observers)
	return out
}

// Threshold is the fixed-for-the-run consensus threshold T.
func (r *Registry) Threshold() int {
	return r.threshold
}

// PeersOf returns a uniformly-random sample of up to n validators excluding
// self, used to choose the broadcast subset for a new transaction
// (spec.md §4.9 step 5). A fresh *rand.Rand must be supplied by the caller
// (each validator's own source) to avoid contending on the global lock.
func (r *Registry) PeersOf(self models.ASN, n int, rng *rand.Rand) []models.ASN {
	candidates := make([]models.ASN, 0, len(r.validators))
	for _, v := range r.validators {
		if v != self {
			candidates = append(candidates, v)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}
