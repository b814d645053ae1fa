// Package d365_tools provides MCP tools for working with Dynamics 365
// Finance and Operations data entities.
//
// This package implements MCP (Model Context Protocol) tools that wrap the
// Dynamics 365 OData client, exposing catalog discovery and record
// operations to AI assistants.
//
// # Available Tools
//
// Discovery:
//   - d365_list_entities: List all data entities exposed by the environment
//   - d365_resolve_entity: Resolve a fuzzy entity name to its catalog locator
//
// Read Operations:
//   - d365_query_records: Query records with OData filter, select, orderby,
//     expand, top and cross-company options
//   - d365_get_record: Fetch a single record by its key segment
//
// Write Operations (only registered when the server runs with --yolo):
//   - d365_create_record: Create a record from a JSON object
//   - d365_update_record: Patch fields of an existing record
//   - d365_delete_record: Delete a record by its key segment
//   - d365_call_action: Invoke an OData action bound to an entity
//
// # Entity Names
//
// All tools accept the 'entity' parameter as a human-readable name. It is
// resolved against the environment's entity catalog with typo-tolerant
// matching, so "custmers" finds CustomersV3.
//
// # Authentication
//
// Tools authenticate against the environment with the service principal
// configured through the D365_* environment variables. Tokens are fetched
// lazily and cached, so a misconfigured credential set surfaces as a tool
// error rather than a startup failure.
package d365_tools
