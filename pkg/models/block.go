package models

import (
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Block is an append-only, hash-chained record. Genesis is block 0 with
// PrevHash == ZeroHash. Spec.md §3.
type Block struct {
	BlockNumber    uint64             `json:"blockNumber"`
	PrevHash       chainhash.Hash     `json:"-"`
	MerkleRoot     chainhash.Hash     `json:"-"`
	BlockHash      chainhash.Hash     `json:"-"`
	CreatedAt      time.Time          `json:"timestamp"`
	Type           BlockType          `json:"blockType"`
	Transactions   []Transaction      `json:"transactions"`
	AttackVerdicts []AttackVerdict    `json:"attackVerdicts,omitempty"`
}

// Wire is the bit-exact JSON encoding from spec.md §6.
type Wire struct {
	BlockNumber    uint64          `json:"block_number"`
	Timestamp      time.Time       `json:"timestamp"`
	PreviousHash   string          `json:"previous_hash"`
	MerkleRoot     string          `json:"merkle_root"`
	BlockHash      string          `json:"block_hash"`
	BlockType      BlockType       `json:"block_type"`
	Transactions   []Transaction   `json:"transactions"`
	AttackVerdicts []AttackVerdict `json:"attack_verdicts,omitempty"`
}

// ToWire renders the block in the spec's external encoding.
func (b *Block) ToWire() Wire {
	return Wire{
		BlockNumber:    b.BlockNumber,
		Timestamp:      b.CreatedAt.UTC(),
		PreviousHash:   HashHex(b.PrevHash),
		MerkleRoot:     HashHex(b.MerkleRoot),
		BlockHash:      HashHex(b.BlockHash),
		BlockType:      b.Type,
		Transactions:   b.Transactions,
		AttackVerdicts: b.AttackVerdicts,
	}
}

// Payloads exposes the canonically-encoded Merkle leaves for a block,
// for external recomputation (e.g. VerifyIntegrity).
func (b *Block) Payloads() [][]byte {
	return b.payloads()
}

// payloads returns the canonically-encoded leaves the Merkle tree is built
// over: one per transaction, or one per attack verdict for verdict blocks.
func (b *Block) payloads() [][]byte {
	if len(b.AttackVerdicts) > 0 {
		out := make([][]byte, len(b.AttackVerdicts))
		for i, v := range b.AttackVerdicts {
			out[i] = v.CanonicalPayload()
		}
		return out
	}
	out := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = tx.CanonicalPayload()
	}
	return out
}

// ComputeMerkleRoot builds a SHA-256 binary Merkle tree over the block's
// canonically-encoded payloads, duplicating the last node on an odd level
// (spec.md §3). An empty payload set hashes to the SHA-256 of the empty
// byte string, keeping genesis well-defined.
func ComputeMerkleRoot(payloads [][]byte) chainhash.Hash {
	if len(payloads) == 0 {
		return HashPayload(nil)
	}
	level := make([]chainhash.Hash, len(payloads))
	for i, p := range payloads {
		level[i] = HashPayload(p)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			left := level[2*i]
			right := level[2*i+1]
			next[i] = HashPayload(append(append([]byte{}, left[:]...), right[:]...))
		}
		level = next
	}
	return level[0]
}

// ComputeBlockHash computes block_hash = H(block_number || prev_hash ||
// merkle_root || created_at || block_type), per spec.md §3.
func ComputeBlockHash(blockNumber uint64, prevHash, merkleRoot chainhash.Hash, createdAt time.Time, blockType BlockType) chainhash.Hash {
	payload := canonicalConcat(
		strconv.FormatUint(blockNumber, 10),
		HashHex(prevHash),
		HashHex(merkleRoot),
		createdAt.UTC().Format(time.RFC3339Nano),
		string(blockType),
	)
	return HashPayload(payload)
}

// Finalize computes MerkleRoot and BlockHash from the block's current
// fields, given the previous block's hash. Callers set BlockNumber,
// CreatedAt, Type, Transactions/AttackVerdicts and PrevHash first.
func (b *Block) Finalize() {
	b.MerkleRoot = ComputeMerkleRoot(b.payloads())
	b.BlockHash = ComputeBlockHash(b.BlockNumber, b.PrevHash, b.MerkleRoot, b.CreatedAt, b.Type)
}
