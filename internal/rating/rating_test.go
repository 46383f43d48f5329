package rating

import (
	"testing"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func newTestEngine(now *int64) (*Engine, config.Config) {
	cfg := config.Default()
	cfg.InitialScore = 50
	cfg.Penalty = map[string]float64{"PREFIX_HIJACK": 30}
	cfg.RepeatPenaltyWindow = 100
	cfg.RepeatPenaltySurcharge = 10
	cfg.PersistentAttackerThreshold = 3
	cfg.PersistentAttackerSurcharge = 20
	cfg.LegitStreakThreshold = 3
	cfg.LegitStreakReward = 5
	cfg.PeriodicBonusInterval = 1000
	cfg.PeriodicBonusAmount = 2
	cfg.FalseReportPenalty = 15
	return New(cfg, func() int64 { return *now }), cfg
}

func TestInitialScoreIsCfgDefault(t *testing.T) {
	now := int64(0)
	e, cfg := newTestEngine(&now)
	score := e.Score(models.ASN(1))
	if score.Score != cfg.InitialScore {
		t.Fatalf("Score = %v, want %v", score.Score, cfg.InitialScore)
	}
}

func TestApplyPenaltySubtractsBaseAmount(t *testing.T) {
	now := int64(0)
	e, _ := newTestEngine(&now)
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	score := e.Score(models.ASN(1))
	if score.Score != 20 { // 50 - 30
		t.Fatalf("Score = %v, want 20", score.Score)
	}
	if score.AttackCounter30d != 1 {
		t.Fatalf("AttackCounter30d = %d, want 1", score.AttackCounter30d)
	}
}

func TestRepeatPenaltyWithinWindowAddsSurcharge(t *testing.T) {
	now := int64(0)
	e, _ := newTestEngine(&now)
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack) // 50 -> 20
	now = 50                                                 // within RepeatPenaltyWindow=100
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack) // -30 -10 surcharge = 20 -> 0 (clamped)
	score := e.Score(models.ASN(1))
	if score.Score != 0 {
		t.Fatalf("Score = %v, want 0 (clamped)", score.Score)
	}
	if score.AttackCounter30d != 2 {
		t.Fatalf("AttackCounter30d = %d, want 2", score.AttackCounter30d)
	}
}

func TestPersistentAttackerSurchargeAppliesAtThreshold(t *testing.T) {
	now := int64(0)
	e, _ := newTestEngine(&now)
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	now = 10
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	now = 20
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack) // 3rd within window -> persistent surcharge too
	score := e.Score(models.ASN(1))
	if score.AttackCounter30d != 3 {
		t.Fatalf("AttackCounter30d = %d, want 3", score.AttackCounter30d)
	}
	if score.Score != 0 {
		t.Fatalf("Score = %v, want 0 (clamped well below zero)", score.Score)
	}
}

func TestPenaltyOutsideWindowResetsCounter(t *testing.T) {
	now := int64(0)
	e, _ := newTestEngine(&now)
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	now = 1000 // past RepeatPenaltyWindow=100
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	score := e.Score(models.ASN(1))
	if score.AttackCounter30d != 1 {
		t.Fatalf("AttackCounter30d = %d, want 1 (window expired)", score.AttackCounter30d)
	}
}

func TestLegitStreakAwardsRewardEveryNObservations(t *testing.T) {
	now := int64(0)
	e, cfg := newTestEngine(&now)
	for i := 0; i < cfg.LegitStreakThreshold; i++ {
		e.RecordLegitimate(models.ASN(2))
	}
	score := e.Score(models.ASN(2))
	if score.Score != cfg.InitialScore+cfg.LegitStreakReward {
		t.Fatalf("Score = %v, want %v", score.Score, cfg.InitialScore+cfg.LegitStreakReward)
	}
	if score.LegitStreak != 0 {
		t.Fatalf("LegitStreak = %d, want reset to 0", score.LegitStreak)
	}
}

func TestPenalizeFalseReportAppliesFlatPenalty(t *testing.T) {
	now := int64(0)
	e, cfg := newTestEngine(&now)
	e.PenalizeFalseReport(models.ASN(3))
	score := e.Score(models.ASN(3))
	if score.Score != cfg.InitialScore-cfg.FalseReportPenalty {
		t.Fatalf("Score = %v, want %v", score.Score, cfg.InitialScore-cfg.FalseReportPenalty)
	}
}

func TestReportSnapshotsAllTrackedASes(t *testing.T) {
	now := int64(0)
	e, _ := newTestEngine(&now)
	e.ApplyPenalty(models.ASN(1), models.AttackPrefixHijack)
	e.RecordLegitimate(models.ASN(2))

	report := e.Report()
	if _, ok := report.Scores[models.ASN(1)]; !ok {
		t.Fatal("expected AS1 in report")
	}
	if _, ok := report.Scores[models.ASN(2)]; !ok {
		t.Fatal("expected AS2 in report")
	}
}
