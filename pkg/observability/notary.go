// Package observability provides notary-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notary-specific semantic convention attributes.
var (
	// Namespace attributes
	AttrNamespace = attribute.Key("notary.namespace")

	// Block attributes
	AttrBlockHeight = attribute.Key("notary.block.height")
	AttrBlockCount  = attribute.Key("notary.block.count")
	AttrCommitment  = attribute.Key("notary.block.commitment")

	// Admission attributes
	AttrRejectionReason = attribute.Key("notary.rejection.reason")
	AttrSchemaVersion   = attribute.Key("notary.receipt.schema_version")

	// Seal attributes
	AttrSealTrigger = attribute.Key("notary.seal.trigger")
	AttrSignerKeyID = attribute.Key("notary.signer.key_id")
)

// Seal trigger values recorded on notary.blocks.sealed.total.
const (
	TriggerCount  = "count"
	TriggerWindow = "window"
	TriggerManual = "manual"
	TriggerRetry  = "retry"
)

// SealOperation creates attributes for seal operations.
func SealOperation(namespace string, height uint64, count int, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrNamespace.String(namespace),
		AttrBlockHeight.Int64(int64(height)),
		AttrBlockCount.Int(count),
		AttrSealTrigger.String(trigger),
	}
}

// AdmissionOperation creates attributes for receipt admission.
func AdmissionOperation(namespace string, schemaVersion int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrNamespace.String(namespace),
		AttrSchemaVersion.Int(schemaVersion),
	}
}

// RejectionOperation creates attributes for receipt rejection.
func RejectionOperation(namespace, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrNamespace.String(namespace),
		AttrRejectionReason.String(reason),
	}
}

// SigningOperation creates attributes for signing operations.
func SigningOperation(namespace, keyID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrNamespace.String(namespace),
		AttrSignerKeyID.String(keyID),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
