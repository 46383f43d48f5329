// Package rating implements the Trust Rating Engine (C11): a per-AS
// score starting at InitialScore, penalized on a confirmed attack and
// rewarded for sustained legitimate behavior.
//
// Grounded on internal/api/ratelimit.go's per-key entry pattern: a
// top-level map guarded by its own mutex hands out per-AS entries that
// each carry their own mutex, so updates to different ASes never
// contend and updates to the same AS are strictly serialized (spec.md
// §4.11 "serializes per-AS updates; cross-AS operations ... independent").
package rating

import (
	"sync"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

const (
	minScore = 0.0
	maxScore = 100.0
)

type entry struct {
	mu                sync.Mutex
	score             models.TrustScore
	lastAttackLogical int64
	lastBonusLogical  int64
}

// Engine is the process-wide trust rating engine, shared by every node
// runtime (validator or observer) that needs to read or update an AS's
// score.
type Engine struct {
	cfg config.Config
	now func() int64

	mu      sync.Mutex
	entries map[models.ASN]*entry
}

// New creates a rating engine. now is the node runtime's shared
// clock.Clock.Now, so rating decisions use the same logical time as the
// rest of the simulation.
func New(cfg config.Config, now func() int64) *Engine {
	return &Engine{cfg: cfg, now: now, entries: make(map[models.ASN]*entry)}
}

func (e *Engine) getOrCreate(as models.ASN) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[as]
	if !ok {
		en = &entry{score: models.TrustScore{AS: as, Score: e.cfg.InitialScore}}
		e.entries[as] = en
	}
	return en
}

func clamp(v float64) float64 {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

// applyDelta mutates en.score and appends a history entry. Caller must
// hold en.mu.
func (e *Engine) applyDelta(en *entry, delta float64, reason string) {
	en.score.Score = clamp(en.score.Score + delta)
	en.score.History = append(en.score.History, models.TrustHistoryEntry{
		At:       time.Unix(e.now(), 0).UTC(),
		Delta:    delta,
		Reason:   reason,
		NewScore: en.score.Score,
	})
}

// ApplyPenalty implements attackvote.Rater: a confirmed attack by
// attacker, penalized by PENALTY[kind], clamped at 0, with a repeat
// surcharge if another penalty lands within RepeatPenaltyWindow and a
// persistent-attacker surcharge once PersistentAttackerThreshold
// penalties have accumulated within that window (spec.md §4.11).
func (e *Engine) ApplyPenalty(attacker models.ASN, kind models.AttackKind) {
	en := e.getOrCreate(attacker)
	en.mu.Lock()
	defer en.mu.Unlock()

	now := e.now()
	delta := -e.cfg.Penalty[string(kind)]

	withinWindow := en.score.AttackCounter30d > 0 && now-en.lastAttackLogical <= e.cfg.RepeatPenaltyWindow
	if withinWindow {
		delta -= e.cfg.RepeatPenaltySurcharge
		en.score.AttackCounter30d++
	} else {
		en.score.AttackCounter30d = 1
	}
	if en.score.AttackCounter30d >= e.cfg.PersistentAttackerThreshold {
		delta -= e.cfg.PersistentAttackerSurcharge
	}

	e.applyDelta(en, delta, "penalty:"+string(kind))
	en.lastAttackLogical = now
	en.score.LastAttackAt = time.Unix(now, 0).UTC()
	en.score.LegitStreak = 0
}

// PenalizeFalseReport implements attackvote.Rater: a flat penalty
// applied to a proposer whose attack report resolved NOT_ATTACK
// (spec.md §4.10 "On NOT_ATTACK: penalize the proposer").
func (e *Engine) PenalizeFalseReport(proposer models.ASN) {
	en := e.getOrCreate(proposer)
	en.mu.Lock()
	defer en.mu.Unlock()
	e.applyDelta(en, -e.cfg.FalseReportPenalty, "false_report")
}

// RecordLegitimate registers one more clean observation attributed to
// as: every LegitStreakThreshold consecutive legitimate observations
// earns LegitStreakReward, and a PeriodicBonusAmount lands every
// PeriodicBonusInterval of sustained activity regardless of streak
// length (spec.md §4.11 "per-N-legitimate thresholds ... and periodic
// bonuses for consistent good behavior").
func (e *Engine) RecordLegitimate(as models.ASN) {
	en := e.getOrCreate(as)
	en.mu.Lock()
	defer en.mu.Unlock()

	en.score.LegitStreak++
	if en.score.LegitStreak >= e.cfg.LegitStreakThreshold {
		e.applyDelta(en, e.cfg.LegitStreakReward, "legit_streak")
		en.score.LegitStreak = 0
	}

	now := e.now()
	if en.lastBonusLogical == 0 {
		en.lastBonusLogical = now
		return
	}
	if now-en.lastBonusLogical >= e.cfg.PeriodicBonusInterval {
		e.applyDelta(en, e.cfg.PeriodicBonusAmount, "periodic_bonus")
		en.lastBonusLogical = now
	}
}

// Score returns a snapshot of as's current trust score.
func (e *Engine) Score(as models.ASN) models.TrustScore {
	en := e.getOrCreate(as)
	en.mu.Lock()
	defer en.mu.Unlock()
	history := append([]models.TrustHistoryEntry(nil), en.score.History...)
	snap := en.score
	snap.History = history
	return snap
}

// Report returns the external RatingReport snapshot (spec.md §6).
func (e *Engine) Report() models.RatingReport {
	e.mu.Lock()
	ases := make([]models.ASN, 0, len(e.entries))
	for as := range e.entries {
		ases = append(ases, as)
	}
	e.mu.Unlock()

	scores := make(map[models.ASN]models.TrustScore, len(ases))
	for _, as := range ases {
		scores[as] = e.Score(as)
	}
	return models.RatingReport{Scores: scores}
}
