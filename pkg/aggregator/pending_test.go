package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

func pendingReceipt(tag byte) *contracts.Receipt {
	var d contracts.Digest
	d[0] = tag
	d[31] = 0x01
	return &contracts.Receipt{Namespace: "app1", ContentHash: d}
}

func TestPendingBatch_WindowStartTracksOldestEntry(t *testing.T) {
	b := &pendingBatch{}
	assert.True(t, b.empty())
	assert.True(t, b.windowStart().IsZero())

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b.add(pendingReceipt(1), t0)
	b.add(pendingReceipt(2), t0.Add(time.Second))
	b.add(pendingReceipt(3), t0.Add(2*time.Second))

	require.Equal(t, 3, b.size())
	assert.Equal(t, t0, b.windowStart())
}

func TestPendingBatch_FirstReturnsPrefixWithoutRemoving(t *testing.T) {
	b := &pendingBatch{}
	t0 := time.Now()
	for i := byte(1); i <= 4; i++ {
		b.add(pendingReceipt(i), t0)
	}

	prefix := b.first(2)
	require.Len(t, prefix, 2)
	assert.Equal(t, byte(1), prefix[0].ContentHash[0])
	assert.Equal(t, byte(2), prefix[1].ContentHash[0])
	assert.Equal(t, 4, b.size())

	// Asking for more than present caps at the batch size.
	all := b.first(10)
	assert.Len(t, all, 4)
}

func TestPendingBatch_DropAdvancesWindowStart(t *testing.T) {
	b := &pendingBatch{}
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b.add(pendingReceipt(1), t0)
	b.add(pendingReceipt(2), t0.Add(time.Second))
	b.add(pendingReceipt(3), t0.Add(2*time.Second))

	b.drop(2)
	require.Equal(t, 1, b.size())
	assert.Equal(t, byte(3), b.first(1)[0].ContentHash[0])
	// The survivor keeps its own admission time.
	assert.Equal(t, t0.Add(2*time.Second), b.windowStart())

	b.drop(5)
	assert.True(t, b.empty())
	assert.True(t, b.windowStart().IsZero())
}
