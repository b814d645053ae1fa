// Package cmd implements the command-line interface for mcpd365.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing Dynamics 365 data entities as tools
//   - entities: Resolve an entity name against the Dynamics 365 entity catalog
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
