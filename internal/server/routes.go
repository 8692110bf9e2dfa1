package server

import (
	"encoding/json"
	"net/http"

	"github.com/bobmcallan/vision-mcp/internal/config"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// MCP endpoint (JSON-RPC over HTTP)
	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.opts.MCP)
	}

	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{"GET": s.handleHealth})
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{"GET": s.handleVersion})
	})

	// 404 handler for unmatched routes
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": config.GetVersion(),
		"build":   config.GetBuild(),
		"commit":  config.GetGitCommit(),
		"tools":   s.opts.CatalogTools,
	})
}

// handleNotFound returns a JSON 404 for unmatched routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
