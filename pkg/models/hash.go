package models

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// canonicalConcat joins fields with a field separator that cannot appear in
// any of the fields we sign (prefixes are CIDR text, ASNs are decimal,
// hashes are hex) — a cheap canonical encoding, in the spirit of the spec's
// "field-ordered byte concatenation" (spec.md §4.3).
func canonicalConcat(fields ...string) []byte {
	return []byte(strings.Join(fields, "|"))
}

func asnString(as ASN) string {
	return strconv.FormatUint(uint64(as), 10)
}

func int64String(v int64) string {
	return strconv.FormatInt(v, 10)
}

// HashHex renders a chainhash.Hash as lowercase forward-order hex, matching
// the spec's wire encoding (spec.md §6). Deliberately does not use
// chainhash.Hash.String(), which renders the bitcoin-convention
// byte-reversed digest.
func HashHex(h chainhash.Hash) string {
	return hex.EncodeToString(h[:])
}

// HashPayload computes a single SHA-256 digest over an arbitrary byte
// payload, reusing the chainhash package's Hash type (already a module
// dependency via the block store's transaction hash encoding).
func HashPayload(payload []byte) chainhash.Hash {
	return chainhash.HashH(payload)
}

// ZeroHash is the genesis block's previous hash.
var ZeroHash chainhash.Hash

// NewTxID computes tx_id = H(merger_as, observation_timestamp, nonce), per
// spec.md §4.9 step 4. nonce is expected to be a fresh google/uuid string
// minted by the caller, making tx_id unguessable and unreachable by
// construction for a duplicate merger/timestamp pair.
func NewTxID(merger ASN, observationTimestamp int64, nonce string) string {
	h := HashPayload(canonicalConcat(asnString(merger), int64String(observationTimestamp), nonce))
	return HashHex(h)
}

// NewVerdictID computes verdict_id the same way tx_id is computed, keyed
// instead on the proposing AS, the attacked prefix, and a fresh nonce
// (spec.md §3: "verdict_id is deduplicated like tx_id").
func NewVerdictID(proposer ASN, prefix string, nonce string) string {
	h := HashPayload(canonicalConcat(asnString(proposer), prefix, nonce))
	return HashHex(h)
}
