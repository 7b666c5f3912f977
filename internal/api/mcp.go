package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nabdhq/nabd/internal/gemini"
	"github.com/nabdhq/nabd/internal/tools"
)

// MCPRunner abstracts tool execution for the MCP layer.
type MCPRunner interface {
	Execute(ctx context.Context, call gemini.FunctionCall, allowed []string) tools.Result
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runner MCPRunner
}

var mcpAllowedTools = []string{
	tools.NameSearchTools,
	tools.NameCompareTools,
	tools.NameGetToolDetails,
	tools.NameSearchByCategory,
	tools.NameGetPopularTools,
}

// NewMCPServer exposes the catalog tools over MCP so external assistants can
// query the directory directly, bypassing the conversation loop.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"nabd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("nabd is an Arabic-first AI tools directory offering semantic search, comparison, and details for AI tools."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool(tools.NameSearchTools,
			mcp.WithDescription("Semantically search the AI tools directory by need or description."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRunTool(deps, tools.NameSearchTools, func(req mcp.CallToolRequest) (map[string]any, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return nil, fmt.Errorf("query is required")
			}
			return map[string]any{
				"query": query,
				"limit": float64(req.GetInt("limit", 0)),
			}, nil
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.NameCompareTools,
			mcp.WithDescription("Compare two or more tools by features and pricing."),
			mcp.WithArray("tool_names", mcp.Description("Names of the tools to compare"), mcp.Required()),
		),
		mcpRunTool(deps, tools.NameCompareTools, func(req mcp.CallToolRequest) (map[string]any, error) {
			names := req.GetStringSlice("tool_names", nil)
			if len(names) == 0 {
				return nil, fmt.Errorf("tool_names is required")
			}
			return map[string]any{"tool_names": toAnySlice(names)}, nil
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.NameGetToolDetails,
			mcp.WithDescription("Fetch the full record of one tool by name."),
			mcp.WithString("tool_name", mcp.Description("Name of the tool"), mcp.Required()),
		),
		mcpRunTool(deps, tools.NameGetToolDetails, func(req mcp.CallToolRequest) (map[string]any, error) {
			name, err := req.RequireString("tool_name")
			if err != nil {
				return nil, fmt.Errorf("tool_name is required")
			}
			return map[string]any{"tool_name": name}, nil
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.NameSearchByCategory,
			mcp.WithDescription("List tools in a specific category."),
			mcp.WithString("category", mcp.Description("Category name"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRunTool(deps, tools.NameSearchByCategory, func(req mcp.CallToolRequest) (map[string]any, error) {
			category, err := req.RequireString("category")
			if err != nil {
				return nil, fmt.Errorf("category is required")
			}
			return map[string]any{
				"category": category,
				"limit":    float64(req.GetInt("limit", 0)),
			}, nil
		}),
	)

	s.AddTool(
		mcp.NewTool(tools.NameGetPopularTools,
			mcp.WithDescription("List the most recently added tools, optionally filtered by category."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
			mcp.WithString("category", mcp.Description("Optional category filter")),
		),
		mcpRunTool(deps, tools.NameGetPopularTools, func(req mcp.CallToolRequest) (map[string]any, error) {
			return map[string]any{
				"limit":    float64(req.GetInt("limit", 0)),
				"category": req.GetString("category", ""),
			}, nil
		}),
	)

	return s
}

func mcpRunTool(deps MCPDeps, name string, parseArgs func(mcp.CallToolRequest) (map[string]any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := parseArgs(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res := deps.Runner.Execute(ctx, gemini.FunctionCall{Name: name, Args: args}, mcpAllowedTools)
		if !res.Success {
			return mcpError(res.Err), nil
		}

		b, err := json.Marshal(res.Data)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
