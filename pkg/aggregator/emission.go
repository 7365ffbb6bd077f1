package aggregator

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// EmissionChannel is the bounded, ordered hand-off of sealed LogBlocks
// to the downstream consumer. The producer side blocks while the buffer
// is full; Close is the consumer's signal that it has shut down for
// good. The data channel itself is never closed, so a supervisor racing
// a consumer shutdown gets ErrChannelClosed instead of a send panic.
type EmissionChannel struct {
	ch   chan *contracts.LogBlock
	done chan struct{}
	once sync.Once
}

func newEmissionChannel(capacity int) *EmissionChannel {
	return &EmissionChannel{
		ch:   make(chan *contracts.LogBlock, capacity),
		done: make(chan struct{}),
	}
}

// Emit hands one block to the consumer, blocking while the buffer is
// full. It returns ErrChannelClosed once Close has been called and the
// context error if the caller's context ends first. A nil return means
// the consumer side holds the block.
func (e *EmissionChannel) Emit(ctx context.Context, block *contracts.LogBlock) error {
	select {
	case <-e.done:
		return ErrChannelClosed
	default:
	}
	select {
	case e.ch <- block:
		return nil
	case <-e.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Blocks returns the receive side. It is never closed; consumers select
// against their own shutdown signal and call Close when they stop
// receiving.
func (e *EmissionChannel) Blocks() <-chan *contracts.LogBlock {
	return e.ch
}

// Close marks the consumer as permanently gone. Safe to call more than
// once. Already-buffered blocks stay readable for a consumer that wants
// to finish draining; anything the supervisor could not hand off stays
// in its checkpoint as the unsent block.
func (e *EmissionChannel) Close() {
	e.once.Do(func() { close(e.done) })
}

// Closed reports whether Close has been called.
func (e *EmissionChannel) Closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
