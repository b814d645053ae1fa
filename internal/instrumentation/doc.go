// Package instrumentation wires OpenTelemetry metrics and tracing for the
// Dynamics 365 MCP gateway.
//
// Provider owns the meter and tracer providers and their exporters
// (Prometheus by default, OTLP or stdout optionally). Metrics exposes typed
// recorders for the signals the gateway emits: HTTP requests on the MCP
// endpoint, active sessions, Dynamics 365 OData operations, token refreshes,
// entity index builds and resolutions, and tool invocations. AuditLogger
// produces a structured audit trail of every tool call.
//
// Configuration comes from environment variables with sensible defaults; set
// INSTRUMENTATION_ENABLED=false to disable all of it (stdio deployments
// usually do).
package instrumentation
