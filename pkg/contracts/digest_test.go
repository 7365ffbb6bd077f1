package contracts

import (
	"crypto/sha256"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseDigestRoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("receipt payload"))
	d, err := DigestFromBytes(sum[:])
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	parsed, err := ParseDigest(d.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != d {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, d)
	}
}

func TestParseDigestRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"deadbeef",
		"sha256:",
		"sha256:zz",
		"sha256:" + strings.Repeat("ab", 31),
		"sha512:" + strings.Repeat("ab", 32),
	}
	for _, in := range cases {
		if _, err := ParseDigest(in); err == nil {
			t.Errorf("ParseDigest(%q): expected error", in)
		}
	}
}

func TestDigestJSON(t *testing.T) {
	sum := sha256.Sum256([]byte("x"))
	d, _ := DigestFromBytes(sum[:])

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Digest
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Fatal("json round trip mismatch")
	}

	if err := json.Unmarshal([]byte(`"sha256:nothex"`), &back); err == nil {
		t.Fatal("expected error for malformed digest string")
	}
}

func TestZeroDigestIsGenesis(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Fatal("zero value must read as genesis")
	}
	sum := sha256.Sum256(nil)
	nd, _ := DigestFromBytes(sum[:])
	if nd.IsZero() {
		t.Fatal("non-zero digest must not read as genesis")
	}
}
