package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "notary", config.ServiceName)
	require.Equal(t, "1.0.0", config.ServiceVersion)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	tracer := p.Tracer()
	require.NotNil(t, tracer)

	meter := p.Meter()
	require.NotNil(t, meter)
}

func TestTrackOperation(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx := context.Background()
	attrs := SealOperation("app1", 3, 10, TriggerCount)

	newCtx, finish := p.TrackOperation(ctx, "notary.seal", attrs...)
	require.NotNil(t, newCtx)

	// Simulate some work
	time.Sleep(1 * time.Millisecond)

	// Call finish without error
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx := context.Background()
	_, finish := p.TrackOperation(ctx, "notary.seal.error")

	// Call finish with error
	testErr := errors.New("test error")
	finish(testErr)

	// Should not panic
}

func TestRecordMetricsDisabled(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx := context.Background()

	// These should not panic when provider is disabled
	p.RecordRequest(ctx, attribute.String("test", "value"))
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
	p.RecordDuration(ctx, 100*time.Millisecond, attribute.String("test", "value"))
	p.RecordAdmission(ctx, "app1")
	p.RecordRejection(ctx, "app1", "UNSUPPORTED_VERSION")
	p.RecordSeal(ctx, "app1", 10, TriggerWindow, 20*time.Millisecond)
	p.RecordEmissionWait(ctx, "app1", time.Millisecond)
}

func TestStartSpan(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx := context.Background()
	newCtx, span := p.StartSpan(ctx, "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	span.End()
}

func TestShutdown(t *testing.T) {
	config := &Config{
		Enabled: false,
	}

	p, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.Shutdown(ctx)
	require.NoError(t, err)
}

// Test notary-specific helpers

func TestSealOperation(t *testing.T) {
	attrs := SealOperation("app1", 42, 100, TriggerCount)
	require.Len(t, attrs, 4)
	require.Equal(t, "notary.namespace", string(attrs[0].Key))
	require.Equal(t, "app1", attrs[0].Value.AsString())
	require.Equal(t, "notary.block.height", string(attrs[1].Key))
	require.Equal(t, int64(42), attrs[1].Value.AsInt64())
}

func TestRejectionOperation(t *testing.T) {
	attrs := RejectionOperation("app2", "INVALID_NAMESPACE")
	require.Len(t, attrs, 2)
	require.Equal(t, "notary.rejection.reason", string(attrs[1].Key))
	require.Equal(t, "INVALID_NAMESPACE", attrs[1].Value.AsString())
}

func TestSigningOperation(t *testing.T) {
	attrs := SigningOperation("app1", "key-abc123")
	require.Len(t, attrs, 2)
	require.Equal(t, "notary.signer.key_id", string(attrs[1].Key))
	require.Equal(t, "key-abc123", attrs[1].Value.AsString())
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()
	span := SpanFromContext(ctx)
	require.NotNil(t, span) // Returns a no-op span if none
}

func TestAddSpanEvent(t *testing.T) {
	ctx := context.Background()
	// Should not panic
	AddSpanEvent(ctx, "test.event", attribute.String("key", "value"))
}

func TestSetSpanStatus(t *testing.T) {
	ctx := context.Background()
	// Should not panic
	SetSpanStatus(ctx, errors.New("test error"))
	SetSpanStatus(ctx, nil)
}
