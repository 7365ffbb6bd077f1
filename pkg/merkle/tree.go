// Package merkle computes the LogBlock commitment: a binary Merkle
// tree over a batch's receipt content hashes in admission order. Order
// is part of the commitment; reordering changes the root.
package merkle

import (
	"crypto/sha256"
	"errors"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// Domain tags prevent cross-protocol collisions with every other use
// of SHA-256 in the system.
const (
	leafTag = "LogBlock-Merkle:leaf:v1\x00"
	nodeTag = "LogBlock-Merkle:node:v1\x00"
)

// ErrNoLeaves rejects a commitment over an empty batch.
var ErrNoLeaves = errors.New("merkle: no leaves")

// Commitment computes the Merkle root over the given leaves. An odd
// trailing node at any level is promoted unchanged to the next level;
// duplicate-pairing is disallowed (it enables a known forgery class).
// A single-leaf commitment is the leaf-tagged hash of that leaf, so a
// one-leaf tree is distinguishable from a raw content hash.
func Commitment(leaves []contracts.Digest) (contracts.Digest, error) {
	if len(leaves) == 0 {
		return contracts.Digest{}, ErrNoLeaves
	}
	if len(leaves) == 1 {
		return leafHash(leaves[0]), nil
	}

	level := make([]contracts.Digest, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

func nextLevel(level []contracts.Digest) []contracts.Digest {
	next := make([]contracts.Digest, 0, (len(level)+1)/2)
	for i := 0; i+1 < len(level); i += 2 {
		next = append(next, nodeHash(level[i], level[i+1]))
	}
	if len(level)%2 == 1 {
		next = append(next, level[len(level)-1])
	}
	return next
}

func nodeHash(left, right contracts.Digest) contracts.Digest {
	h := sha256.New()
	h.Write([]byte(nodeTag))
	h.Write(left[:])
	h.Write(right[:])
	var d contracts.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func leafHash(leaf contracts.Digest) contracts.Digest {
	h := sha256.New()
	h.Write([]byte(leafTag))
	h.Write(leaf[:])
	var d contracts.Digest
	copy(d[:], h.Sum(nil))
	return d
}
