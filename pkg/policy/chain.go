package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/notary/pkg/aggregator"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// Chain runs several policies in order; the first denial wins and later
// members never see the receipt. An empty chain admits everything.
type Chain struct {
	members []aggregator.AdmissionPolicy
}

// NewChain builds a chain from the given members, in evaluation order.
func NewChain(members ...aggregator.AdmissionPolicy) *Chain {
	return &Chain{members: members}
}

func (c *Chain) Name() string {
	if len(c.members) == 0 {
		return "chain()"
	}
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Admit(ctx context.Context, r *contracts.Receipt) error {
	for _, m := range c.members {
		if err := m.Admit(ctx, r); err != nil {
			return fmt.Errorf("%s: %w", m.Name(), err)
		}
	}
	return nil
}
