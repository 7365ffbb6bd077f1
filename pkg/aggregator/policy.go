package aggregator

import (
	"context"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// AdmissionPolicy vets structurally valid receipts before they join a
// pending batch. A non-nil error denies admission; evaluation failures
// deny too (fail closed). Policies run inside the supervisor goroutine
// and must be fast and side-effect free.
type AdmissionPolicy interface {
	// Name identifies the policy in rejection details and logs.
	Name() string
	// Admit returns nil to admit the receipt.
	Admit(ctx context.Context, r *contracts.Receipt) error
}
