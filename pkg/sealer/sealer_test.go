package sealer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/merkle"
)

func batch(n int, base time.Time) []*contracts.Receipt {
	receipts := make([]*contracts.Receipt, n)
	for i := range receipts {
		sum := sha256.Sum256([]byte(fmt.Sprintf("payload-%d", i)))
		content, _ := contracts.DigestFromBytes(sum[:])
		receipts[i] = &contracts.Receipt{
			SchemaVersion: contracts.SupportedSchemaVersion,
			Namespace:     "app1",
			SubjectID:     fmt.Sprintf("c-%d", i),
			Operation:     "invoke",
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			ContentHash:   content,
		}
	}
	return receipts
}

// flakySigner fails a fixed number of times before delegating.
type flakySigner struct {
	inner    crypto.Signer
	failures int
}

func (s *flakySigner) Sign(data []byte) ([]byte, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("hsm offline")
	}
	return s.inner.Sign(data)
}

func (s *flakySigner) PublicKey() ed25519.PublicKey { return s.inner.PublicKey() }
func (s *flakySigner) KeyID() string                { return s.inner.KeyID() }

func TestSealEmptyBatch(t *testing.T) {
	signer, _ := crypto.NewEd25519Signer()
	if _, err := Seal("app1", nil, 1, signer); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestSealAssemblesBlock(t *testing.T) {
	signer, _ := crypto.NewEd25519Signer()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	receipts := batch(3, base)

	block, err := Seal("app1", receipts, 7, signer)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if block.Version != contracts.LogBlockVersion {
		t.Errorf("version %d, want %d", block.Version, contracts.LogBlockVersion)
	}
	if block.Namespace != "app1" || block.Height != 7 || block.Count != 3 {
		t.Errorf("unexpected block header: %+v", block)
	}
	if !block.TimeRange.From.Equal(base) || !block.TimeRange.To.Equal(base.Add(2*time.Second)) {
		t.Errorf("time range %v..%v", block.TimeRange.From, block.TimeRange.To)
	}

	leaves := []contracts.Digest{receipts[0].ContentHash, receipts[1].ContentHash, receipts[2].ContentHash}
	want, _ := merkle.Commitment(leaves)
	if block.Commitment != want {
		t.Error("commitment does not match merkle root over admission order")
	}

	ok, err := VerifyBlock(block, signer.PublicKey())
	if err != nil || !ok {
		t.Fatalf("block signature must verify: ok=%v err=%v", ok, err)
	}

	block.Height++
	ok, _ = VerifyBlock(block, signer.PublicKey())
	if ok {
		t.Fatal("tampered block must not verify")
	}
}

func TestSealTimeRangeUnordered(t *testing.T) {
	signer, _ := crypto.NewEd25519Signer()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	receipts := batch(3, base)
	// Later work can finish first; the range covers min..max regardless.
	receipts[0].Timestamp = base.Add(10 * time.Second)

	block, err := Seal("app1", receipts, 1, signer)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !block.TimeRange.From.Equal(base.Add(1 * time.Second)) {
		t.Errorf("from %v, want %v", block.TimeRange.From, base.Add(1*time.Second))
	}
	if !block.TimeRange.To.Equal(base.Add(10 * time.Second)) {
		t.Errorf("to %v, want %v", block.TimeRange.To, base.Add(10*time.Second))
	}
}

func TestSealSigningUnavailable(t *testing.T) {
	inner, _ := crypto.NewEd25519Signer()
	signer := &flakySigner{inner: inner, failures: 1}
	receipts := batch(2, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	_, err := Seal("app1", receipts, 1, signer)
	var unavailable *SigningUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected SigningUnavailableError, got %v", err)
	}
	if unavailable.Namespace != "app1" {
		t.Errorf("error namespace %q", unavailable.Namespace)
	}

	// Retry with the identical receipt set: same commitment as a
	// first-attempt success would have produced.
	block, err := Seal("app1", receipts, 1, signer)
	if err != nil {
		t.Fatalf("retry seal: %v", err)
	}
	leaves := []contracts.Digest{receipts[0].ContentHash, receipts[1].ContentHash}
	want, _ := merkle.Commitment(leaves)
	if block.Commitment != want {
		t.Fatal("commitment must depend on receipts only, not attempt count")
	}
}

func TestSealSingleReceipt(t *testing.T) {
	signer, _ := crypto.NewEd25519Signer()
	receipts := batch(1, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	block, err := Seal("app1", receipts, 1, signer)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if block.Count != 1 {
		t.Fatalf("count %d, want 1", block.Count)
	}
	if !block.TimeRange.From.Equal(block.TimeRange.To) {
		t.Fatal("single receipt: from and to must match")
	}
	if block.Commitment == receipts[0].ContentHash {
		t.Fatal("single-leaf commitment must not equal the raw content hash")
	}
}
