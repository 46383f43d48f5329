package blockstore

import (
	"fmt"
	"log"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// ReplicaStatus summarizes a validator's replica for the metrics/telemetry
// layer (spec.md §6 BlockchainSnapshot.ReplicaValidity). LastGoodTip is the
// block hash of the highest block this replica has accepted — the
// last-good-tip report SPEC_FULL.md's supplemented chain-divergence-repair
// feature calls for, grounded on the teacher's GetMixers count+page
// response shape (a small summary struct alongside the raw rows).
type ReplicaStatus struct {
	AS          models.ASN
	Height      int
	Divergences int
	LastGoodTip chainhash.Hash
}

// Replica is a per-validator read-only view of the chain, fed solely by
// BlockReplicate messages. It validates the hash chain against its own
// local tip and rejects (without remediating) any block that doesn't
// extend it, per spec.md §4.8.
type Replica struct {
	as models.ASN

	mu          sync.Mutex
	blocks      []models.Block
	divergences int
}

// NewReplica creates an empty replica for validator as. Call
// ApplyReplicated(genesis) first, the same as every other validator.
func NewReplica(as models.ASN) *Replica {
	return &Replica{as: as}
}

// ApplyReplicated validates b against the replica's current tip and, if it
// extends the chain correctly, appends it. A chain-divergence (wrong
// prev_hash, or a block number that isn't exactly the next one) is
// rejected and logged, and counted, but never auto-repaired within this
// component (spec.md §4.8). RequestResync is the only way to replace a
// diverged chain, and the orchestrator never calls it.
func (r *Replica) ApplyReplicated(b models.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wantNumber := uint64(len(r.blocks))
	if b.BlockNumber != wantNumber {
		r.divergences++
		log.Printf("blockstore: replica AS%d rejected block %d: expected block_number %d", r.as, b.BlockNumber, wantNumber)
		return fmt.Errorf("blockstore: replica diverged: got block_number %d, want %d", b.BlockNumber, wantNumber)
	}

	if len(r.blocks) > 0 {
		prevTip := r.blocks[len(r.blocks)-1].BlockHash
		if b.PrevHash != prevTip {
			r.divergences++
			log.Printf("blockstore: replica AS%d rejected block %d: prev_hash mismatch", r.as, b.BlockNumber)
			return fmt.Errorf("blockstore: replica diverged at block %d: prev_hash mismatch", b.BlockNumber)
		}
	}

	r.blocks = append(r.blocks, b)
	return nil
}

// RequestResync replaces the replica's entire chain with a fresh copy from
// the primary, clearing the divergence count. Nothing in the orchestrator
// calls it, so a replica that diverges during a run stays diverged.
func (r *Replica) RequestResync(full []models.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append([]models.Block(nil), full...)
	r.divergences = 0
}

// Status reports the replica's height, cumulative divergence count, and
// last-good-tip (the hash of the highest block successfully applied).
func (r *Replica) Status() ReplicaStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := ReplicaStatus{AS: r.as, Height: len(r.blocks), Divergences: r.divergences}
	if len(r.blocks) > 0 {
		status.LastGoodTip = r.blocks[len(r.blocks)-1].BlockHash
	}
	return status
}

// Blocks returns a snapshot copy of the replica's chain.
func (r *Replica) Blocks() []models.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}
