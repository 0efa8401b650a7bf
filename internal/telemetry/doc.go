// Package telemetry sets up OpenTelemetry tracing and metrics.
//
// When telemetry.enabled is false, New returns an instance whose tracers and
// meters come from the global (no-op) providers, so instrumented code never
// checks whether telemetry is on.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc        # or http/protobuf
//	  sample_rate: 0.25
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
