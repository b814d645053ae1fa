package d365_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
	"github.com/Nanda8994/MCPD365Server/internal/odata"
	"github.com/Nanda8994/MCPD365Server/internal/server"
	"github.com/Nanda8994/MCPD365Server/internal/tools/common"
)

// registerQueryTools registers the read-only catalog and query tools
func registerQueryTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// List entities tool
	listEntitiesTool := mcp.NewTool("d365_list_entities",
		mcp.WithDescription("List all data entities exposed by the Dynamics 365 environment"),
	)

	s.AddTool(listEntitiesTool, common.InstrumentedToolHandlerWithOperation("d365_list_entities", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			entities, err := client.ListEntities(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to list entities: %v", err)), nil
			}

			result, _ := json.MarshalIndent(entities, "", "  ")
			return mcp.NewToolResultText(string(result)), nil
		}))

	// Resolve entity tool
	resolveEntityTool := mcp.NewTool("d365_resolve_entity",
		mcp.WithDescription("Resolve a possibly misspelled entity name to its exact Dynamics 365 locator"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity name to resolve, e.g. 'customers' or 'custmers'"),
		),
	)

	s.AddTool(resolveEntityTool, common.InstrumentedToolHandlerWithOperation("d365_resolve_entity", instrumentation.OperationResolve, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			entity := getEntityFromArgs(args)
			if entity == "" {
				return mcp.NewToolResultError("entity is required"), nil
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			return mcp.NewToolResultText(locator), nil
		}))

	// Query records tool
	queryRecordsTool := mcp.NewTool("d365_query_records",
		mcp.WithDescription("Query records of a Dynamics 365 entity with optional OData query options"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity to query. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("filter",
			mcp.Description("OData $filter expression, e.g. \"CustomerAccount eq 'US-001'\""),
		),
		mcp.WithString("select",
			mcp.Description("Comma-separated list of fields for $select"),
		),
		mcp.WithString("orderby",
			mcp.Description("OData $orderby expression, e.g. 'Name desc'"),
		),
		mcp.WithString("expand",
			mcp.Description("OData $expand expression for related entities"),
		),
		mcp.WithNumber("top",
			mcp.Description("Maximum number of records to return ($top)"),
		),
		mcp.WithBoolean("crossCompany",
			mcp.Description("Query across all companies instead of the default company"),
		),
	)

	s.AddTool(queryRecordsTool, common.InstrumentedToolHandlerWithOperation("d365_query_records", instrumentation.OperationQuery, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			entity := getEntityFromArgs(args)
			if entity == "" {
				return mcp.NewToolResultError("entity is required"), nil
			}

			opts := odata.QueryOptions{}
			if v, ok := args["filter"].(string); ok {
				opts.Filter = v
			}
			if v, ok := args["select"].(string); ok {
				opts.Select = parseCommaSeparatedList(v)
			}
			if v, ok := args["orderby"].(string); ok {
				opts.OrderBy = v
			}
			if v, ok := args["expand"].(string); ok {
				opts.Expand = v
			}
			if v, ok := args["top"].(float64); ok {
				opts.Top = int(v)
			}
			if v, ok := args["crossCompany"].(bool); ok {
				opts.CrossCompany = v
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			records, err := client.QueryRecords(ctx, locator, opts)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to query %s: %v", locator, err)), nil
			}

			return mcp.NewToolResultText(string(records)), nil
		}))

	// Get record tool
	getRecordTool := mcp.NewTool("d365_get_record",
		mcp.WithDescription("Retrieve a single Dynamics 365 record by its key"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity the record belongs to. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The record key, e.g. \"dataAreaId='usmf',CustomerAccount='US-001'\""),
		),
	)

	s.AddTool(getRecordTool, common.InstrumentedToolHandlerWithOperation("d365_get_record", instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			entity := getEntityFromArgs(args)
			if entity == "" {
				return mcp.NewToolResultError("entity is required"), nil
			}

			key, ok := args["key"].(string)
			if !ok || key == "" {
				return mcp.NewToolResultError("key is required"), nil
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			record, err := client.GetRecord(ctx, locator, key)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to get record from %s: %v", locator, err)), nil
			}

			return mcp.NewToolResultText(string(record)), nil
		}))

	return nil
}
