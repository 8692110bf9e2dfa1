// Package mcp exposes the tool catalog to MCP hosts and forwards calls to
// the dispatcher.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/dispatch"
)

// FilePathNotice prefixes every tool description in tools/list.
const FilePathNotice = "Note: Any files passed to image, pdf, or video parameters must be absolute paths or uris, no relative paths. Here is what this tool does: "

// BuildMCPTool converts a catalog tool into an mcp.Tool carrying the
// catalog's input schema verbatim.
func BuildMCPTool(t catalog.Tool) mcp.Tool {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		// Catalog schemas come from JSON or YAML and always re-encode.
		raw = []byte(`{"type":"object"}`)
	}
	return mcp.NewToolWithRawSchema(t.Name, FilePathNotice+t.Description, raw)
}

// GenericToolHandler returns a handler that dispatches calls for one tool.
// Failures are reported inside the result, never as protocol errors.
func GenericToolHandler(d *dispatch.Dispatcher, t catalog.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.Invoke(ctx, t.Name, r.GetArguments()), nil
	}
}

// RegisterToolsFromCatalog registers every catalog tool on s. A get_version
// tool is added unless the catalog already defines one. Returns the number
// of catalog tools registered.
func RegisterToolsFromCatalog(s *server.MCPServer, d *dispatch.Dispatcher) int {
	tools := d.Catalog().Tools()
	for _, t := range tools {
		s.AddTool(BuildMCPTool(t), GenericToolHandler(d, t))
	}
	if _, ok := d.Catalog().Get(VersionToolName); !ok {
		s.AddTool(VersionTool(), VersionToolHandler(d.Catalog()))
	}
	return len(tools)
}
