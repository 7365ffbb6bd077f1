// Package observability provides OpenTelemetry tracing and metrics for
// the notary. It implements production-ready observability following
// cloud-native best practices.
//
// # Initialization
//
// Initialize the provider at application startup:
//
//	provider, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "notaryd",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//		Enabled:      true,
//	})
//	defer provider.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := provider.StartSpan(ctx, "notary.seal")
//	defer span.End()
//
// # Metrics
//
// Record business metrics along the seal pipeline:
//
//	provider.RecordAdmission(ctx, "app1")
//	provider.RecordRejection(ctx, "app1", "UNSUPPORTED_VERSION")
//	provider.RecordSeal(ctx, "app1", count, observability.TriggerCount, elapsed)
//	provider.RecordEmissionWait(ctx, "app1", waited)
//
// All record methods are safe to call on a disabled provider; they
// become no-ops so callers never need to branch on telemetry state.
package observability
