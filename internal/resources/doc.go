// Package resources provides MCP resources for exposing environment data.
// Resources are read-only data sources that MCP clients can fetch, such as
// the entity catalog and connection metadata for the configured
// Dynamics 365 environment.
package resources
