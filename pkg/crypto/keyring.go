package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const namespaceKDFSalt = "notary-namespace-kdf"

// Keyring derives per-namespace signers from a single master seed via
// HKDF-SHA256, so namespaces never share a signing key even when the
// operator configures one master secret. Derivation is deterministic:
// the same (seed, namespace) pair always yields the same keypair, which
// is what lets a restarted process keep signing for its namespaces.
type Keyring struct {
	seed []byte
}

// NewKeyring wraps a 32-byte master seed.
func NewKeyring(seed []byte) (*Keyring, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: master seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	k := &Keyring{seed: make([]byte, ed25519.SeedSize)}
	copy(k.seed, seed)
	return k, nil
}

// ForNamespace derives the namespace's signer.
func (k *Keyring) ForNamespace(namespace string) (*Ed25519Signer, error) {
	if namespace == "" {
		return nil, fmt.Errorf("crypto: namespace must not be empty")
	}

	r := hkdf.New(sha256.New, k.seed, []byte(namespaceKDFSalt), []byte(namespace))
	derived := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("crypto: hkdf derivation failed: %w", err)
	}
	return NewEd25519SignerFromSeed(derived)
}

// MasterPublicKey exposes the master identity for keystore metadata.
func (k *Keyring) MasterPublicKey() ed25519.PublicKey {
	return ed25519.NewKeyFromSeed(k.seed).Public().(ed25519.PublicKey)
}
