package aggregator

import "errors"

var (
	// ErrChannelClosed reports an Emit against an emission channel whose
	// consumer has shut down for good.
	ErrChannelClosed = errors.New("aggregator: emission channel closed")

	// ErrDrained reports an operation against a namespace whose consumer
	// is gone; the supervisor no longer accepts receipts.
	ErrDrained = errors.New("aggregator: namespace drained")

	// ErrFailed reports an operation against a namespace halted by a
	// fatal error. The wrapped cause names the broken boundary.
	ErrFailed = errors.New("aggregator: namespace failed")

	// ErrStopped reports an operation against a supervisor that was shut
	// down.
	ErrStopped = errors.New("aggregator: supervisor stopped")

	// ErrAlreadyRunning reports a second Start on a running supervisor
	// or registry.
	ErrAlreadyRunning = errors.New("aggregator: already running")

	// ErrUnknownNamespace reports an operation against a namespace the
	// registry was never configured for.
	ErrUnknownNamespace = errors.New("aggregator: unknown namespace")
)
