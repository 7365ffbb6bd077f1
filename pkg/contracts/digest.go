package contracts

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DigestSize is the fixed byte width of every digest the notary handles.
const DigestSize = 32

// Digest is a raw SHA-256 value. The zero value is the genesis sentinel
// for a subject's causal chain.
type Digest [DigestSize]byte

// ZeroDigest marks the start of a prev_hash chain.
var ZeroDigest Digest

const digestPrefix = "sha256:"

// ParseDigest parses the canonical "sha256:<64 hex chars>" form.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if !strings.HasPrefix(s, digestPrefix) {
		return d, fmt.Errorf("contracts: digest %q missing %q prefix", s, digestPrefix)
	}
	raw, err := hex.DecodeString(s[len(digestPrefix):])
	if err != nil {
		return d, fmt.Errorf("contracts: digest hex decode: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("contracts: digest is %d bytes, want %d", len(raw), DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// DigestFromBytes copies a raw digest value, enforcing the fixed width.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("contracts: digest is %d bytes, want %d", len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// String renders the canonical "sha256:<hex>" form.
func (d Digest) String() string {
	return digestPrefix + hex.EncodeToString(d[:])
}

// Hex renders the bare lowercase hex without the prefix.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the genesis sentinel.
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

func (d Digest) MarshalJSON() ([]byte, error) {
	//nolint:wrapcheck // caller provides context
	return json.Marshal(d.String())
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("contracts: digest must be a JSON string: %w", err)
	}
	parsed, err := ParseDigest(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
