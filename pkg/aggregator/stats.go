package aggregator

import "time"

// State names one position in the per-namespace trigger state machine.
type State string

const (
	// StateIdle: the pending batch is empty, no timer is running.
	StateIdle State = "IDLE"
	// StateAccumulating: at least one receipt is pending, the window
	// timer is running.
	StateAccumulating State = "ACCUMULATING"
	// StateSealing: a seal is in progress; receipts submitted now land
	// in the next batch.
	StateSealing State = "SEALING"
	// StateDrained: terminal; the consumer closed the emission channel.
	StateDrained State = "DRAINED"
	// StateFailed: terminal; a fatal error halted the supervisor.
	StateFailed State = "FAILED"
)

// Terminal reports whether the state machine can never leave this state.
func (s State) Terminal() bool {
	return s == StateDrained || s == StateFailed
}

// Stats is a point-in-time snapshot of one namespace's supervisor. It
// is safe to poll at any time; reading it never touches the state
// machine.
type Stats struct {
	Namespace     string        `json:"namespace"`
	State         State         `json:"state"`
	PendingCount  int           `json:"pending_count"`
	CurrentHeight uint64        `json:"current_height"`
	WindowAge     time.Duration `json:"window_age"`
	LastSealTime  time.Time     `json:"last_seal_time"`
	LastSealError string        `json:"last_seal_error,omitempty"`

	ReceiptsAccepted uint64 `json:"receipts_accepted"`
	ReceiptsRejected uint64 `json:"receipts_rejected"`
	BlocksSealed     uint64 `json:"blocks_sealed"`
}
