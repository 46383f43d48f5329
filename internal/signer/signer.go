// Package signer is the Signature Engine (C3): per-validator Ed25519-class
// keypairs, generated at startup and kept in RAM, with sign/verify over the
// canonical payload encodings defined in pkg/models.
//
// No third-party Ed25519 implementation appears anywhere in the example
// corpus (the teacher's only signature surface is btcsuite/btcd's
// secp256k1, the wrong curve for an "Ed25519-class" scheme per spec.md
// §4.3) — this is the repo's one deliberate use of the standard library
// for a crypto primitive; see DESIGN.md.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// KeyPair holds one validator's public and private key.
type KeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Engine generates and holds one KeyPair per validator AS and performs
// sign/verify against the canonical payload encodings.
type Engine struct {
	mu   sync.RWMutex
	keys map[models.ASN]KeyPair
}

// NewEngine generates a fresh keypair for every validator AS supplied.
func NewEngine(validators []models.ASN) (*Engine, error) {
	e := &Engine{keys: make(map[models.ASN]KeyPair, len(validators))}
	for _, as := range validators {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("signer: generating keypair for AS%d: %w", as, err)
		}
		e.keys[as] = KeyPair{Public: pub, private: priv}
	}
	return e, nil
}

// PublicKey returns a validator's public key, for verification by peers.
func (e *Engine) PublicKey(as models.ASN) (ed25519.PublicKey, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	kp, ok := e.keys[as]
	return kp.Public, ok
}

// Sign signs payload on behalf of validator as. Fails if as has no keypair.
func (e *Engine) Sign(as models.ASN, payload []byte) ([]byte, error) {
	e.mu.RLock()
	kp, ok := e.keys[as]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("signer: no keypair for AS%d", as)
	}
	return ed25519.Sign(kp.private, payload), nil
}

// Verify checks a signature against a payload and a specific validator's
// public key. Returns models.ErrSignatureInvalid on rejection (spec.md §4.3,
// §7 — never panics, never throws).
func (e *Engine) Verify(as models.ASN, signature, payload []byte) error {
	pub, ok := e.PublicKey(as)
	if !ok {
		return fmt.Errorf("signer: no public key for AS%d: %w", as, models.ErrSignatureInvalid)
	}
	if !ed25519.Verify(pub, payload, signature) {
		return models.ErrSignatureInvalid
	}
	return nil
}

// KeyCount returns the number of keypairs held, for CryptoSummary (spec.md §6).
func (e *Engine) KeyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keys)
}

// Summary reports the crypto scheme in use.
func (e *Engine) Summary() models.CryptoSummary {
	return models.CryptoSummary{Scheme: "Ed25519", KeyCount: e.KeyCount()}
}
