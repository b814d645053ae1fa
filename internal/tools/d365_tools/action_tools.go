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

// registerActionTools registers the OData action invocation tool
func registerActionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	callActionTool := mcp.NewTool("d365_call_action",
		mcp.WithDescription("Invoke an OData action bound to a Dynamics 365 entity"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("The entity the action is bound to. Fuzzy-matched against the entity catalog."),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("The action name, e.g. 'calculateBalance'"),
		),
		mcp.WithString("parameters",
			mcp.Description("Action parameters as a JSON object string"),
		),
	)

	s.AddTool(callActionTool, common.InstrumentedToolHandlerWithOperation("d365_call_action", instrumentation.OperationAction, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})

			entity := getEntityFromArgs(args)
			if entity == "" {
				return mcp.NewToolResultError("entity is required"), nil
			}

			action, ok := args["action"].(string)
			if !ok || action == "" {
				return mcp.NewToolResultError("action is required"), nil
			}

			var params json.RawMessage
			if raw, ok := args["parameters"].(string); ok && raw != "" {
				var probe map[string]interface{}
				if err := json.Unmarshal([]byte(raw), &probe); err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("parameters is not valid JSON: %v", err)), nil
				}
				params = json.RawMessage(raw)
			}

			locator, err := resolveLocator(ctx, sc, entity)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			client, err := getClient(sc)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			result, err := client.CallAction(ctx, locator, action, params)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to call action %s on %s: %v", action, locator, err)), nil
			}

			if len(result) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("Action %s completed successfully on %s", action, locator)), nil
			}
			return mcp.NewToolResultText(string(result)), nil
		}))

	return nil
}
