// Package audit records operator-facing audit events as structured
// JSON lines. Every lifecycle decision the notary makes about a
// namespace (rejections, seals, retries, terminal transitions) is
// recorded here so an operator can reconstruct what happened without
// correlating debug logs.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventReceiptRejected  EventType = "RECEIPT_REJECTED"
	EventBatchSealed      EventType = "BATCH_SEALED"
	EventSealRetry        EventType = "SEAL_RETRY"
	EventForceSeal        EventType = "FORCE_SEAL"
	EventNamespaceDrained EventType = "NAMESPACE_DRAINED"
	EventNamespaceFailed  EventType = "NAMESPACE_FAILED"
	EventKeyGenerated     EventType = "KEY_GENERATED"
)

// Event represents a structured audit record.
type Event struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Namespace string         `json:"namespace"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, namespace string, metadata map[string]any) error
}

// logger implements Logger, writing structured JSON to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(ctx context.Context, eventType EventType, namespace string, metadata map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		Actor:     ActorFromContext(ctx),
		Namespace: namespace,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}
