package crypto

import (
	"bytes"
	"testing"
)

func TestSignerIntegrity(t *testing.T) {
	signer, err := NewEd25519Signer()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	payload := []byte("notary:logblock:v1\x00payload")
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) == 0 {
		t.Fatal("empty signature")
	}

	if !VerifySignature(signer.PublicKey(), payload, sig) {
		t.Fatal("valid signature rejected")
	}

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-1] ^= 0xff
	if VerifySignature(signer.PublicKey(), tampered, sig) {
		t.Fatal("tampered payload accepted")
	}
}

func TestSignerFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := NewEd25519SignerFromSeed(seed)
	if err != nil {
		t.Fatalf("from seed: %v", err)
	}
	b, _ := NewEd25519SignerFromSeed(seed)
	if !a.PublicKey().Equal(b.PublicKey()) {
		t.Fatal("same seed must derive the same key")
	}
	if a.KeyID() != b.KeyID() {
		t.Fatal("key IDs diverged for the same key")
	}

	if _, err := NewEd25519SignerFromSeed(seed[:16]); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestKeyringNamespaceSeparation(t *testing.T) {
	seed := bytes.Repeat([]byte{3}, 32)
	kr, err := NewKeyring(seed)
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}

	app1, err := kr.ForNamespace("app1")
	if err != nil {
		t.Fatalf("derive app1: %v", err)
	}
	app2, err := kr.ForNamespace("app2")
	if err != nil {
		t.Fatalf("derive app2: %v", err)
	}
	if app1.PublicKey().Equal(app2.PublicKey()) {
		t.Fatal("namespaces must not share signing keys")
	}

	again, _ := kr.ForNamespace("app1")
	if !app1.PublicKey().Equal(again.PublicKey()) {
		t.Fatal("derivation must be deterministic")
	}

	if _, err := kr.ForNamespace(""); err == nil {
		t.Fatal("expected error for empty namespace")
	}
}
