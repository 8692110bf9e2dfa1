package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/config"
)

// VersionToolName is the name of the built-in version tool.
const VersionToolName = "get_version"

// versionInfo holds version fields for one component.
type versionInfo struct {
	Version string `json:"version"`
	Build   string `json:"build,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Tools   int    `json:"tools,omitempty"`
}

// VersionTool returns the mcp.Tool definition for get_version.
func VersionTool() mcp.Tool {
	return mcp.NewTool(VersionToolName,
		mcp.WithDescription("Get vision-mcp server version and the loaded tool catalog. Use this to verify connectivity."),
	)
}

// VersionToolHandler reports the server build and the catalog it serves.
func VersionToolHandler(c *catalog.Catalog) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := map[string]versionInfo{
			"vision_mcp": {
				Version: config.GetVersion(),
				Build:   config.GetBuild(),
				Commit:  config.GetGitCommit(),
			},
		}
		if c != nil {
			name := c.Name()
			if name == "" {
				name = "catalog"
			}
			result[name] = versionInfo{Version: c.Version(), Tools: c.Len()}
		}

		out, err := json.Marshal(result)
		if err != nil {
			return errorResult("failed to marshal version info"), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(out))},
		}, nil
	}
}

// errorResult creates an MCP error result with the given message.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}
