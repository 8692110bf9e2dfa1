package mcp

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/dispatch"
)

// NewServer creates an MCP server exposing every tool in the dispatcher's
// catalog. The same server backs both the stdio and the HTTP transport.
func NewServer(name, version string, d *dispatch.Dispatcher, logger *common.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	toolCount := RegisterToolsFromCatalog(s, d)

	logger.Info().
		Int("tools", toolCount).
		Str("catalog", d.Catalog().Name()).
		Str("catalog_version", d.Catalog().Version()).
		Msg("MCP server initialized")

	return s
}

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	streamable *mcpserver.StreamableHTTPServer
	logger     *common.Logger
}

// NewHandler creates a stateless streamable HTTP handler for s.
func NewHandler(s *mcpserver.MCPServer, logger *common.Logger) *Handler {
	return &Handler{
		streamable: mcpserver.NewStreamableHTTPServer(s,
			mcpserver.WithStateLess(true),
		),
		logger: logger,
	}
}

// ServeHTTP delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}
