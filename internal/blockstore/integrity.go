package blockstore

import (
	"fmt"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// IntegrityReport is the result of VerifyIntegrity: ok iff errors is empty.
type IntegrityReport struct {
	OK     bool
	Errors []string
}

// VerifyIntegrity walks the chain from genesis, recomputing each block's
// Merkle root and block hash and checking the prev_hash link, per
// spec.md §4.8. Re-running it is pure and idempotent (spec.md §8).
func (s *Store) VerifyIntegrity() IntegrityReport {
	blocks := s.Blocks()
	var errs []string

	var prevHash = models.ZeroHash
	for i := range blocks {
		b := blocks[i]
		if b.PrevHash != prevHash {
			errs = append(errs, fmt.Sprintf("block %d: prev_hash mismatch", b.BlockNumber))
		}
		wantMerkle := models.ComputeMerkleRoot(b.Payloads())
		if wantMerkle != b.MerkleRoot {
			errs = append(errs, fmt.Sprintf("block %d: merkle_root mismatch", b.BlockNumber))
		}
		wantHash := models.ComputeBlockHash(b.BlockNumber, b.PrevHash, b.MerkleRoot, b.CreatedAt, b.Type)
		if wantHash != b.BlockHash {
			errs = append(errs, fmt.Sprintf("block %d: block_hash mismatch", b.BlockNumber))
		}
		if uint64(i) != b.BlockNumber {
			errs = append(errs, fmt.Sprintf("block %d: out-of-order block_number %d", i, b.BlockNumber))
		}
		prevHash = b.BlockHash
	}

	return IntegrityReport{OK: len(errs) == 0, Errors: errs}
}
