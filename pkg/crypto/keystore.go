package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Keystore is the on-disk JSON form of the master seed.
type Keystore struct {
	Version   int       `json:"version"`
	Seed      string    `json:"seed"` // base64, 32 bytes
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

const keystoreVersion = 1

// GenerateSeed produces a fresh 32-byte master seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("crypto: generate seed: %w", err)
	}
	return seed, nil
}

// SaveKeystore writes the seed to path with restricted permissions.
// It refuses to overwrite an existing keystore.
func SaveKeystore(path string, seed []byte) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("crypto: seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("crypto: keystore already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("crypto: create keystore dir: %w", err)
	}

	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	ks := Keystore{
		Version:   keystoreVersion,
		Seed:      base64.StdEncoding.EncodeToString(seed),
		PublicKey: hex.EncodeToString(pub),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return fmt.Errorf("crypto: marshal keystore: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("crypto: write keystore: %w", err)
	}
	return nil
}

// LoadKeystore reads the keystore at path into a Keyring.
func LoadKeystore(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read keystore: %w", err)
	}

	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("crypto: parse keystore: %w", err)
	}
	if ks.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", ks.Version)
	}
	seed, err := base64.StdEncoding.DecodeString(ks.Seed)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode seed: %w", err)
	}
	return NewKeyring(seed)
}

// LoadOrCreateKeystore loads the keystore at path, generating and
// persisting a fresh master seed when none exists.
func LoadOrCreateKeystore(path string) (*Keyring, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		seed, err := GenerateSeed()
		if err != nil {
			return nil, err
		}
		if err := SaveKeystore(path, seed); err != nil {
			return nil, err
		}
		return NewKeyring(seed)
	}
	return LoadKeystore(path)
}
