package models

import "time"

// TrustHistoryEntry records a single rating adjustment for audit/history.
type TrustHistoryEntry struct {
	At       time.Time `json:"at"`
	Delta    float64   `json:"delta"`
	Reason   string    `json:"reason"`
	NewScore float64   `json:"newScore"`
}

// TrustScore is the per non-validator AS rating state (C11). Spec.md §3:
// only the rating engine mutates it; updates are serialized per AS.
type TrustScore struct {
	AS               ASN                 `json:"as"`
	Score            float64             `json:"score"`
	History          []TrustHistoryEntry `json:"history"`
	AttackCounter30d int                 `json:"attackCounter30d"`
	LastAttackAt     time.Time           `json:"lastAttackAt"`
	LegitStreak      int                 `json:"legitStreak"`
}

// RatingReport is the external, per-AS final snapshot (spec.md §6).
type RatingReport struct {
	Scores map[ASN]TrustScore `json:"scores"`
}
