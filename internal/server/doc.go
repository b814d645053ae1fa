// Package server binds the MCP protocol to the Dynamics 365 gateway.
//
// ServerContext owns the process-wide dependencies every session shares: the
// Entra ID credential cache, the OData client and the entity resolver.
// SessionRegistry owns the mapping from an MCP session identifier to the
// handler bound at the initialize handshake, including idle-session
// reclamation. StreamableServer is the HTTP transport that enforces the
// session handshake: a request without a session id must be an initialize
// request, a request with an unknown session id is rejected before any
// handler runs.
//
// The package also provides the health check endpoints and the dedicated
// Prometheus metrics server.
package server
