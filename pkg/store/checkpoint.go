// Package store is the durability boundary for aggregation state. A
// supervisor reads its checkpoint before accepting any receipt, writes
// it atomically right after each seal (block included), and clears the
// unsent block once the consumer hand-off is acknowledged. A crash
// between seal and acknowledgment therefore redelivers the block on
// restart instead of reusing or skipping a height.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// ErrNotFound reports a namespace that has never sealed. Callers start
// such a namespace at height zero (first block is height 1).
var ErrNotFound = errors.New("store: checkpoint not found")

// Checkpoint is one namespace's durable aggregation state.
type Checkpoint struct {
	Namespace        string
	LastSealedHeight uint64
	// UnsentBlock is the sealed-but-unacknowledged block, nil once the
	// consumer confirmed delivery.
	UnsentBlock *contracts.LogBlock
	UpdatedAt   time.Time
}

// CheckpointStore is the read/write contract the supervisor drives.
type CheckpointStore interface {
	// Load returns ErrNotFound for a namespace with no checkpoint.
	Load(ctx context.Context, namespace string) (*Checkpoint, error)
	// Save upserts the checkpoint in one atomic write.
	Save(ctx context.Context, cp *Checkpoint) error
	// MarkEmitted clears the unsent block for (namespace, height).
	MarkEmitted(ctx context.Context, namespace string, height uint64) error
	Close() error
}
