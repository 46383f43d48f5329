package blockstore

import (
	"testing"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func TestReplicaAcceptsInOrderBlocks(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 1
	s := New(cfg, "")
	g := s.Genesis()
	s.CommitTransaction(models.Transaction{TxID: "tx-1"})
	blocks := s.Blocks()

	r := NewReplica(models.ASN(1))
	if err := r.ApplyReplicated(g); err != nil {
		t.Fatalf("ApplyReplicated(genesis): %v", err)
	}
	if err := r.ApplyReplicated(blocks[1]); err != nil {
		t.Fatalf("ApplyReplicated(block 1): %v", err)
	}

	status := r.Status()
	if status.Height != 2 || status.Divergences != 0 {
		t.Fatalf("Status = %+v, want height 2, 0 divergences", status)
	}
	if status.LastGoodTip != blocks[1].BlockHash {
		t.Fatalf("LastGoodTip = %v, want %v", status.LastGoodTip, blocks[1].BlockHash)
	}
}

func TestReplicaRejectsHashMismatch(t *testing.T) {
	r := NewReplica(models.ASN(1))

	genesis := models.Block{BlockNumber: 0, Type: models.BlockGenesis}
	genesis.PrevHash = models.ZeroHash
	genesis.Finalize()
	if err := r.ApplyReplicated(genesis); err != nil {
		t.Fatalf("ApplyReplicated(genesis): %v", err)
	}

	bad := models.Block{BlockNumber: 1, Type: models.BlockTransaction, PrevHash: models.ZeroHash}
	bad.Finalize()
	if err := r.ApplyReplicated(bad); err == nil {
		t.Fatal("expected a chain-divergence rejection for a wrong prev_hash")
	}

	status := r.Status()
	if status.Divergences != 1 {
		t.Fatalf("Divergences = %d, want 1", status.Divergences)
	}
	if status.Height != 1 {
		t.Fatalf("Height = %d, want 1 (rejected block must not be applied)", status.Height)
	}
}

func TestReplicaRejectsOutOfOrderBlockNumber(t *testing.T) {
	r := NewReplica(models.ASN(2))
	genesis := models.Block{BlockNumber: 0, Type: models.BlockGenesis, PrevHash: models.ZeroHash}
	genesis.Finalize()
	_ = r.ApplyReplicated(genesis)

	skip := models.Block{BlockNumber: 5, Type: models.BlockTransaction, PrevHash: genesis.BlockHash}
	skip.Finalize()
	if err := r.ApplyReplicated(skip); err == nil {
		t.Fatal("expected rejection of an out-of-sequence block_number")
	}
}

func TestRequestResyncClearsDivergences(t *testing.T) {
	r := NewReplica(models.ASN(3))
	bad := models.Block{BlockNumber: 1, Type: models.BlockTransaction, PrevHash: models.ZeroHash}
	bad.Finalize()
	_ = r.ApplyReplicated(bad)
	if r.Status().Divergences == 0 {
		t.Fatal("expected a divergence to have been recorded")
	}

	full := []models.Block{{BlockNumber: 0, Type: models.BlockGenesis}}
	r.RequestResync(full)

	status := r.Status()
	if status.Divergences != 0 || status.Height != 1 {
		t.Fatalf("Status after resync = %+v, want clean height 1", status)
	}
}
