package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nanda8994/MCPD365Server/internal/server"
)

// RegisterEntityResources registers resources describing the connected
// Dynamics 365 environment.
func RegisterEntityResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Register entity catalog resource
	catalogResource := mcp.NewResource(
		"d365://entities",
		"Dynamics 365 Entity Catalog",
		mcp.WithResourceDescription("All data entities exposed by the connected Dynamics 365 environment"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(catalogResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleEntityCatalog(ctx, request, sc)
	})

	// Register environment resource
	environmentResource := mcp.NewResource(
		"d365://environment",
		"Dynamics 365 Environment",
		mcp.WithResourceDescription("Connection details of the configured Dynamics 365 environment"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(environmentResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleEnvironment(ctx, request, sc)
	})

	return nil
}

// handleEntityCatalog returns the full entity catalog as JSON
func handleEntityCatalog(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client, err := sc.Client()
	if err != nil {
		return nil, fmt.Errorf("Dataverse client unavailable: %w", err)
	}

	entities, err := client.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	jsonData, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity catalog: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleEnvironment returns connection details, secrets excluded
func handleEnvironment(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	cfg := sc.Config()

	envData := map[string]interface{}{
		"resourceUrl": cfg.Resource,
		"tenantId":    cfg.TenantID,
		"loginBase":   cfg.LoginBase,
		"description": "Dynamics 365 Finance and Operations environment",
	}

	jsonData, err := json.MarshalIndent(envData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal environment data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
