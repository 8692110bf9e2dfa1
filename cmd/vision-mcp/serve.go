package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/vision-mcp/internal/app"
	"github.com/bobmcallan/vision-mcp/internal/config"
	"github.com/bobmcallan/vision-mcp/internal/mcp"
	"github.com/bobmcallan/vision-mcp/internal/server"
)

// shutdownTimeout bounds graceful shutdown of the HTTP listeners.
const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	transport string
	port      string
	catalog   string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog over stdio or streamable HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "", "Transport: stdio or http (overrides config)")
	cmd.Flags().StringVarP(&flags.port, "port", "p", "", "HTTP port (overrides config)")
	cmd.Flags().StringVar(&flags.catalog, "catalog", "", "Tool catalog file (default: embedded catalog)")
	return cmd
}

func runServe(ctx context.Context, root *rootFlags, flags *serveFlags) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	config.ApplyFlagOverrides(cfg, flags.transport, flags.port, flags.catalog)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info().
		Str("transport", cfg.Server.Transport).
		Str("port", cfg.Server.Port).
		Str("version", config.GetVersion()).
		Msg("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.Server.Transport {
	case "http":
		srv := server.New(server.Options{
			Addr:         ":" + cfg.Server.Port,
			MCP:          mcp.NewHandler(application.MCPServer, logger),
			Metrics:      application.Metrics.Handler(),
			CatalogTools: application.Catalog.Len(),
			Logger:       logger,
		})
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	default:
		stdio := mcpserver.NewStdioServer(application.MCPServer)
		g.Go(func() error {
			err := stdio.Listen(gctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// The host closing stdin ends the session.
			stop()
			return err
		})
	}

	if cfg.Metrics.Address != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           application.Metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Str("error", err.Error()).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
