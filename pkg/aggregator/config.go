package aggregator

import (
	"fmt"
	"time"
)

// Defaults applied for zero-valued tuning fields.
const (
	DefaultMaxReceiptsPerBatch = 100
	DefaultMaxBatchWindow      = 30 * time.Second
	DefaultSealRetryBackoff    = time.Second
	DefaultEmissionBuffer      = 16
)

// Config sizes one namespace's aggregation pipeline.
type Config struct {
	// Namespace is the isolation boundary this supervisor owns. Stored
	// and compared in NFC form.
	Namespace string `json:"namespace" yaml:"namespace"`

	// MaxReceiptsPerBatch seals the pending batch as soon as it holds
	// this many receipts.
	MaxReceiptsPerBatch int `json:"max_receipts_per_batch" yaml:"max_receipts_per_batch"`

	// MaxBatchWindow seals a non-empty pending batch this long after its
	// first receipt was admitted. The timer does not run while the batch
	// is empty.
	MaxBatchWindow time.Duration `json:"max_batch_window" yaml:"max_batch_window"`

	// SealRetryBackoff paces re-attempts after a transient signing
	// failure. A new admission re-evaluates the batch immediately
	// regardless of this pacing.
	SealRetryBackoff time.Duration `json:"seal_retry_backoff" yaml:"seal_retry_backoff"`

	// EmissionBuffer is the emission channel capacity. A full buffer
	// blocks sealing for this namespace only.
	EmissionBuffer int `json:"emission_buffer" yaml:"emission_buffer"`
}

// DefaultConfig returns sensible defaults for one namespace.
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:           namespace,
		MaxReceiptsPerBatch: DefaultMaxReceiptsPerBatch,
		MaxBatchWindow:      DefaultMaxBatchWindow,
		SealRetryBackoff:    DefaultSealRetryBackoff,
		EmissionBuffer:      DefaultEmissionBuffer,
	}
}

// withDefaults fills zero-valued tuning fields. Namespace is never
// defaulted.
func (c Config) withDefaults() Config {
	if c.MaxReceiptsPerBatch == 0 {
		c.MaxReceiptsPerBatch = DefaultMaxReceiptsPerBatch
	}
	if c.MaxBatchWindow == 0 {
		c.MaxBatchWindow = DefaultMaxBatchWindow
	}
	if c.SealRetryBackoff == 0 {
		c.SealRetryBackoff = DefaultSealRetryBackoff
	}
	if c.EmissionBuffer == 0 {
		c.EmissionBuffer = DefaultEmissionBuffer
	}
	return c
}

// Validate rejects configurations the state machine cannot honor.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("aggregator: namespace must not be empty")
	}
	if c.MaxReceiptsPerBatch < 1 {
		return fmt.Errorf("aggregator: max_receipts_per_batch must be at least 1, got %d", c.MaxReceiptsPerBatch)
	}
	if c.MaxBatchWindow <= 0 {
		return fmt.Errorf("aggregator: max_batch_window must be positive, got %v", c.MaxBatchWindow)
	}
	if c.SealRetryBackoff < 0 {
		return fmt.Errorf("aggregator: seal_retry_backoff must not be negative, got %v", c.SealRetryBackoff)
	}
	if c.EmissionBuffer < 0 {
		return fmt.Errorf("aggregator: emission_buffer must not be negative, got %d", c.EmissionBuffer)
	}
	return nil
}
