package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrEntity    = "entity"
	attrMatched   = "matched"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics for the MCP endpoint
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeSessions      metric.Int64UpDownCounter

	// Dynamics 365 API metrics
	odataOperationsTotal   metric.Int64Counter
	odataOperationDuration metric.Float64Histogram

	// Credential cache metrics
	tokenRefreshTotal metric.Int64Counter

	// Entity resolver metrics
	entityIndexBuildsTotal  metric.Int64Counter
	entityResolutionsTotal  metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels
// (entity names on per-call metrics) are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active MCP sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	// Dynamics 365 API Metrics
	m.odataOperationsTotal, err = meter.Int64Counter(
		"d365_odata_operations_total",
		metric.WithDescription("Total number of Dynamics 365 OData operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create d365_odata_operations_total counter: %w", err)
	}

	m.odataOperationDuration, err = meter.Float64Histogram(
		"d365_odata_operation_duration_seconds",
		metric.WithDescription("Dynamics 365 OData operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create d365_odata_operation_duration_seconds histogram: %w", err)
	}

	// Credential cache metrics
	m.tokenRefreshTotal, err = meter.Int64Counter(
		"d365_token_refresh_total",
		metric.WithDescription("Total number of Entra ID token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create d365_token_refresh_total counter: %w", err)
	}

	// Entity resolver metrics
	m.entityIndexBuildsTotal, err = meter.Int64Counter(
		"d365_entity_index_builds_total",
		metric.WithDescription("Total number of entity catalog index build attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create d365_entity_index_builds_total counter: %w", err)
	}

	m.entityResolutionsTotal, err = meter.Int64Counter(
		"d365_entity_resolutions_total",
		metric.WithDescription("Total number of fuzzy entity name resolutions"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create d365_entity_resolutions_total counter: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordODataOperation records a Dynamics 365 OData operation.
//
// Parameters:
//   - operation: Operation type (list, query, get, create, update, delete, action)
//   - entity: Entity set name, only recorded when detailed labels are enabled
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordODataOperation(ctx context.Context, operation, entity, status string, duration time.Duration) {
	if m.odataOperationsTotal == nil || m.odataOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	// Entity names are the main cardinality risk; only label when enabled
	if m.detailedLabels && entity != "" {
		attrs = append(attrs, attribute.String(attrEntity, SanitizeEntityLabel(entity)))
	}

	m.odataOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.odataOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTokenRefresh records an Entra ID token refresh attempt.
// Result should be one of: "success", "failure", "cached"
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.tokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordEntityIndexBuild records an entity catalog index build attempt.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordEntityIndexBuild(ctx context.Context, result string) {
	if m.entityIndexBuildsTotal == nil {
		return // Instrumentation not initialized
	}

	m.entityIndexBuildsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordEntityResolution records one fuzzy entity lookup and whether a
// candidate within the acceptance threshold was found.
func (m *Metrics) RecordEntityResolution(ctx context.Context, matched bool) {
	if m.entityResolutionsTotal == nil {
		return // Instrumentation not initialized
	}

	m.entityResolutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool(attrMatched, matched),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}
