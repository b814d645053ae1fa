package d365_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
	"github.com/Nanda8994/MCPD365Server/internal/server"
	"github.com/Nanda8994/MCPD365Server/internal/tools/common"
)

// parseRecordArg validates that the record argument is a JSON object
func parseRecordArg(args map[string]interface{}) (json.RawMessage, error) {
	raw, ok := args["record"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("record is required and must be a JSON object string")
	}
	var probe map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("record is not valid JSON: %v", err)
	}
	return json.RawMessage(raw), nil
}

// registerRecordTools registers the record mutation tools.
// Create, update and delete are only registered when readOnly is false.
func registerRecordTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if readOnly {
		return nil
	}

	// Create record tool
	createRecordTool := mcp.NewTool("d365_create_record",
		mcp.WithDescription("Create a new record in a Dynamics 365 entity"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity to create the record in. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("record",
			mcp.Required(),
			mcp.Description("The record fields as a JSON object string"),
		),
	)

	s.AddTool(createRecordTool, common.InstrumentedToolHandlerWithOperation("d365_create_record", instrumentation.OperationCreate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			entity := getEntityFromArgs(args)
			if entity == "" {
				return mcp.NewToolResultError("entity is required"), nil
			}

			record, err := parseRecordArg(args)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			created, err := client.CreateRecord(ctx, locator, record)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to create record in %s: %v", locator, err)), nil
			}

			if len(created) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("Record created successfully in %s", locator)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Record created successfully in %s:\n%s", locator, string(created))), nil
		}))

	// Update record tool
	updateRecordTool := mcp.NewTool("d365_update_record",
		mcp.WithDescription("Update fields of an existing Dynamics 365 record"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity the record belongs to. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The record key, e.g. \"dataAreaId='usmf',CustomerAccount='US-001'\""),
		),
		mcp.WithString("record",
			mcp.Required(),
			mcp.Description("The fields to change as a JSON object string"),
		),
	)

	s.AddTool(updateRecordTool, common.InstrumentedToolHandlerWithOperation("d365_update_record", instrumentation.OperationUpdate, sc,
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

			record, err := parseRecordArg(args)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			if err := client.UpdateRecord(ctx, locator, key, record); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to update record in %s: %v", locator, err)), nil
			}

			return mcp.NewToolResultText(fmt.Sprintf("Record %s updated successfully in %s", key, locator)), nil
		}))

	// Delete record tool
	deleteRecordTool := mcp.NewTool("d365_delete_record",
		mcp.WithDescription("Delete a Dynamics 365 record by its key"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity the record belongs to. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The record key, e.g. \"dataAreaId='usmf',CustomerAccount='US-001'\""),
		),
	)

	s.AddTool(deleteRecordTool, common.InstrumentedToolHandlerWithOperation("d365_delete_record", instrumentation.OperationDelete, sc,
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

			if err := client.DeleteRecord(ctx, locator, key); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to delete record from %s: %v", locator, err)), nil
			}

			return mcp.NewToolResultText(fmt.Sprintf("Record %s deleted successfully from %s", key, locator)), nil
		}))

	return nil
}
