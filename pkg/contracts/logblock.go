package contracts

import "time"

// LogBlockVersion is the current LogBlock format version.
const LogBlockVersion uint16 = 1

// TimeRange spans the earliest and latest receipt timestamps in a batch.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LogBlock is an immutable, signed, sequentially numbered commitment to
// a batch of receipts. Height is strictly increasing per namespace,
// starting at 1, incremented by exactly 1 per sealed batch; a gap in the
// sequence is evidence of loss, never normal operation. The block is
// created exactly once by the sealer and never mutated afterward.
type LogBlock struct {
	Version    uint16    `json:"version"`
	Namespace  string    `json:"namespace"`
	Height     uint64    `json:"height"`
	Commitment Digest    `json:"commitment"`
	Count      uint32    `json:"count"`
	TimeRange  TimeRange `json:"time_range"`
	Signature  []byte    `json:"signature"`
}
