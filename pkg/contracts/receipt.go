package contracts

import "time"

// SupportedSchemaVersion is the only receipt schema version this engine
// admits. Receipts carrying any other version are rejected before they
// touch pending state.
const SupportedSchemaVersion = 1

// ResourceUsage captures the measured cost of one completed execution.
// All four fields count from zero; negative values never validate.
type ResourceUsage struct {
	CPUTimeMillis   int64 `json:"cpu_time_millis"`
	PeakMemoryBytes int64 `json:"peak_memory_bytes"`
	StorageBytes    int64 `json:"storage_bytes"`
	NetworkBytes    int64 `json:"network_bytes"`
}

// Receipt is one record of completed work submitted for aggregation.
// The producer computes ContentHash and Signature before submission;
// the notary stores Signature verbatim and never verifies it (receipt
// authenticity belongs to the admission policy boundary, not the core).
type Receipt struct {
	SchemaVersion int           `json:"schema_version"`
	Namespace     string        `json:"namespace"`
	SubjectID     string        `json:"subject_id"`
	Operation     string        `json:"operation"`
	Timestamp     time.Time     `json:"timestamp"`
	Usage         ResourceUsage `json:"resource_usage"`
	PrevHash      Digest        `json:"prev_hash"`
	ContentHash   Digest        `json:"content_hash"`
	Signature     []byte        `json:"signature,omitempty"`
}
