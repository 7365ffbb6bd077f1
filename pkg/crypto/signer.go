package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer is the opaque signing capability a namespace seals with. Key
// generation, rotation, and storage live behind this boundary; callers
// never touch raw key material. Implementations may fail transiently
// (hardware key store I/O), which callers surface as a retryable seal
// error. A Signer may be shared read-only across namespaces.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
	KeyID() string
}

// Ed25519Signer is the in-process Signer backed by a raw Ed25519 key.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub, keyID: KeyIDFor(pub)}, nil
}

// NewEd25519SignerFromSeed builds a deterministic signer from a 32-byte
// seed. The keyring uses this for namespace-derived keys.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{priv: priv, pub: pub, keyID: KeyIDFor(pub)}, nil
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, data), nil
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}

// KeyIDFor names a public key for logs and audit records: the first 8
// bytes of its SHA-256, hex-encoded.
func KeyIDFor(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// VerifySignature checks an Ed25519 signature over payload.
func VerifySignature(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}
