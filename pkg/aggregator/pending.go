package aggregator

import (
	"time"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

type pendingEntry struct {
	receipt    *contracts.Receipt
	admittedAt time.Time
}

// pendingBatch holds admitted receipts in admission order. It is owned
// exclusively by one supervisor goroutine and never locked. A seal may
// take a prefix and leave the rest behind, so each entry remembers its
// own admission time; the batch window always runs from the oldest
// entry still present.
type pendingBatch struct {
	entries []pendingEntry
}

func (b *pendingBatch) add(r *contracts.Receipt, at time.Time) {
	b.entries = append(b.entries, pendingEntry{receipt: r, admittedAt: at})
}

func (b *pendingBatch) size() int {
	return len(b.entries)
}

func (b *pendingBatch) empty() bool {
	return len(b.entries) == 0
}

// windowStart is the admission time of the oldest entry, zero when the
// batch is empty.
func (b *pendingBatch) windowStart() time.Time {
	if len(b.entries) == 0 {
		return time.Time{}
	}
	return b.entries[0].admittedAt
}

// first returns the first n receipts in admission order without
// removing them. The returned slice is freshly allocated; sealing must
// not alias the batch's backing array.
func (b *pendingBatch) first(n int) []*contracts.Receipt {
	if n > len(b.entries) {
		n = len(b.entries)
	}
	receipts := make([]*contracts.Receipt, n)
	for i := 0; i < n; i++ {
		receipts[i] = b.entries[i].receipt
	}
	return receipts
}

// drop removes the first n entries after a successful seal.
func (b *pendingBatch) drop(n int) {
	if n >= len(b.entries) {
		b.entries = b.entries[:0]
		return
	}
	remaining := len(b.entries) - n
	copy(b.entries, b.entries[n:])
	for i := remaining; i < len(b.entries); i++ {
		b.entries[i] = pendingEntry{}
	}
	b.entries = b.entries[:remaining]
}
