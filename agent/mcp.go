package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the tool library on an MCP server. Tool results are
// returned as JSON text, error payloads are flagged as tool errors.
func NewMCPServer(lib *Library, name, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	for _, t := range lib.Tools() {
		tool, err := mcpTool(t)
		if err != nil {
			return nil, err
		}
		s.AddTool(tool, mcpHandler(lib, t.Name))
	}
	return s, nil
}

func mcpTool(t Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(t.Parameters)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("cannot encode %s schema: %w", t.Name, err)
	}
	tool := mcp.NewToolWithRawSchema(t.Name, t.Description, schema)
	tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(t.ReadOnly)
	tool.Annotations.DestructiveHint = mcp.ToBoolPtr(false)
	return tool, nil
}

func mcpHandler(lib *Library, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := lib.Call(ctx, name, request.GetArguments())
		text, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cannot encode result: %v", err)), nil
		}
		if _, failed := payload["error"]; failed {
			return mcp.NewToolResultError(string(text)), nil
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}
