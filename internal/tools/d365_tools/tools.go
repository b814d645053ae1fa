package d365_tools

import (
	"context"
	"fmt"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nanda8994/MCPD365Server/internal/odata"
	"github.com/Nanda8994/MCPD365Server/internal/server"
)

// getEntityFromArgs extracts the entity argument from request arguments
func getEntityFromArgs(args map[string]interface{}) string {
	if v, ok := args["entity"].(string); ok {
		return v
	}
	return ""
}

// parseCommaSeparatedList splits a comma-separated string into trimmed,
// non-empty items
func parseCommaSeparatedList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getClient returns the shared OData client from the server context
func getClient(sc *server.ServerContext) (*odata.Client, error) {
	client, err := sc.Client()
	if err != nil {
		return nil, fmt.Errorf("Dataverse client unavailable: %w", err)
	}
	return client, nil
}

// resolveLocator maps a user-supplied entity name to its catalog locator.
// The lookup tolerates typos; an unresolvable name yields an error that
// names the query so the caller can correct it.
func resolveLocator(ctx context.Context, sc *server.ServerContext, entity string) (string, error) {
	resolver, err := sc.Resolver()
	if err != nil {
		return "", fmt.Errorf("entity resolver unavailable: %w", err)
	}
	locator, ok := resolver.FindBestMatch(ctx, entity)
	if !ok {
		return "", fmt.Errorf("no entity matching %q was found in the Dataverse catalog", entity)
	}
	return locator, nil
}

// RegisterD365Tools registers all Dynamics 365 tools with the MCP server.
// Write operations are only registered when readOnly is false.
func RegisterD365Tools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerQueryTools(s, sc); err != nil {
		return fmt.Errorf("failed to register query tools: %w", err)
	}

	if err := registerRecordTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register record tools: %w", err)
	}

	if !readOnly {
		if err := registerActionTools(s, sc); err != nil {
			return fmt.Errorf("failed to register action tools: %w", err)
		}
	}

	return nil
}
