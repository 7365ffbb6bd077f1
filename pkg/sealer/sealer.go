// Package sealer turns a pending batch into an immutable, signed
// LogBlock. Sealing never mutates the receipts it is handed; on any
// failure the caller keeps the batch and decides whether to retry.
package sealer

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/merkle"
)

// ErrEmptyBatch flags an attempt to seal zero receipts. This is an
// invariant violation by the caller, never a retryable condition.
var ErrEmptyBatch = errors.New("sealer: empty batch")

// SigningUnavailableError marks a transient signing-capability failure
// (key store offline, hardware I/O). The batch's receipts stay in the
// pending store untouched and the seal is re-attempted on the next
// trigger.
type SigningUnavailableError struct {
	Namespace string
	Err       error
}

func (e *SigningUnavailableError) Error() string {
	return fmt.Sprintf("sealer: signing unavailable for %q: %v", e.Namespace, e.Err)
}

func (e *SigningUnavailableError) Unwrap() error { return e.Err }

// Seal assembles and signs the LogBlock for one batch: time range over
// the receipts' timestamps, Merkle commitment over their content
// hashes in admission order, then a signature over the canonical byte
// encoding. No timeout is imposed on signing; a stalled capability
// blocks the calling supervisor and is an operator-level liveness
// concern.
func Seal(namespace string, receipts []*contracts.Receipt, height uint64, signer crypto.Signer) (*contracts.LogBlock, error) {
	if len(receipts) == 0 {
		return nil, ErrEmptyBatch
	}

	from, to := receipts[0].Timestamp, receipts[0].Timestamp
	leaves := make([]contracts.Digest, len(receipts))
	for i, r := range receipts {
		leaves[i] = r.ContentHash
		if r.Timestamp.Before(from) {
			from = r.Timestamp
		}
		if r.Timestamp.After(to) {
			to = r.Timestamp
		}
	}

	commitment, err := merkle.Commitment(leaves)
	if err != nil {
		return nil, fmt.Errorf("sealer: commitment: %w", err)
	}

	block := &contracts.LogBlock{
		Version:    contracts.LogBlockVersion,
		Namespace:  namespace,
		Height:     height,
		Commitment: commitment,
		Count:      uint32(len(receipts)),
		TimeRange:  contracts.TimeRange{From: from, To: to},
	}

	payload, err := contracts.EncodeSignable(block)
	if err != nil {
		return nil, fmt.Errorf("sealer: encode signable: %w", err)
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, &SigningUnavailableError{Namespace: namespace, Err: err}
	}
	block.Signature = sig
	return block, nil
}

// VerifyBlock checks a sealed block's signature against the given
// public key by recomputing the canonical signable payload.
func VerifyBlock(b *contracts.LogBlock, pub ed25519.PublicKey) (bool, error) {
	payload, err := contracts.EncodeSignable(b)
	if err != nil {
		return false, fmt.Errorf("sealer: encode signable: %w", err)
	}
	return crypto.VerifySignature(pub, payload, b.Signature), nil
}
