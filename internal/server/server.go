// Package server hosts the MCP streamable HTTP endpoint together with
// health, version and metrics routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/vision-mcp/internal/common"
)

// Options configure the HTTP host. MCP is required; Metrics may be nil.
type Options struct {
	Addr    string
	MCP     http.Handler
	Metrics http.Handler
	// CatalogTools is reported by /api/version.
	CatalogTools int
	Logger       *common.Logger
}

// Server manages the HTTP server and routes.
type Server struct {
	opts   Options
	router *http.ServeMux
	server *http.Server
	logger *common.Logger
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = common.NewSilentLogger()
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:        opts.Addr,
		Handler:     s.withMiddleware(s.router),
		ReadTimeout: 30 * time.Second,
		// Vision tools routinely run for minutes; the API's own timeout
		// argument bounds them.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Str("url", fmt.Sprintf("http://%s/mcp", s.server.Addr)).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
