// Package telemetry wires OpenTelemetry tracing and metrics for nomee.
//
// Services create spans through the global otel tracer; New installs OTLP
// exporters behind it when enabled and leaves the no-op providers otherwise.
// Tests use NewTestTelemetry to record spans in memory.
package telemetry
