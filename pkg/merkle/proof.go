package merkle

import (
	"fmt"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// Side names which side of the pair the sibling sits on.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// ProofStep is one level's sibling on the path from leaf to root. A
// level where the node was promoted contributes no step.
type ProofStep struct {
	Side    Side             `json:"side"`
	Sibling contracts.Digest `json:"sibling"`
}

// Proof lets a consumer check that one receipt's content hash is part
// of a sealed commitment without the rest of the batch.
type Proof struct {
	Index int              `json:"index"`
	Leaf  contracts.Digest `json:"leaf"`
	Steps []ProofStep      `json:"steps"`
}

// Prove builds the inclusion proof for leaves[index] under the same
// promote-odd scheme Commitment uses. A single-leaf proof has zero
// steps; Verify applies the leaf tag in that case.
func Prove(leaves []contracts.Digest, index int) (*Proof, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: index %d out of range [0,%d)", index, len(leaves))
	}

	p := &Proof{Index: index, Leaf: leaves[index]}
	if len(leaves) == 1 {
		return p, nil
	}

	level := make([]contracts.Digest, len(leaves))
	copy(level, leaves)
	i := index
	for len(level) > 1 {
		switch {
		case i%2 == 1:
			p.Steps = append(p.Steps, ProofStep{Side: SideLeft, Sibling: level[i-1]})
		case i+1 < len(level):
			p.Steps = append(p.Steps, ProofStep{Side: SideRight, Sibling: level[i+1]})
		}
		// otherwise the node is the odd trailing one: promoted, no step
		level = nextLevel(level)
		i /= 2
	}
	return p, nil
}

// Verify recomputes the root from the proof and compares it to the
// sealed commitment.
func Verify(p *Proof, commitment contracts.Digest) bool {
	if p == nil {
		return false
	}
	if len(p.Steps) == 0 {
		return leafHash(p.Leaf) == commitment
	}

	current := p.Leaf
	for _, step := range p.Steps {
		switch step.Side {
		case SideLeft:
			current = nodeHash(step.Sibling, current)
		case SideRight:
			current = nodeHash(current, step.Sibling)
		default:
			return false
		}
	}
	return current == commitment
}
