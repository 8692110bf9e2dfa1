// Package app wires configuration, catalog, dispatcher and MCP server into
// one process.
package app

import (
	"fmt"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/afero"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/config"
	"github.com/bobmcallan/vision-mcp/internal/dispatch"
	"github.com/bobmcallan/vision-mcp/internal/mcp"
	"github.com/bobmcallan/vision-mcp/internal/metrics"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Catalog    *catalog.Catalog
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.PrometheusRecorder
	MCPServer  *mcpserver.MCPServer

	// OutputDir is the expanded output directory, empty when images are not saved.
	OutputDir string
}

// Option customizes New. Used by tests to swap the filesystem.
type Option func(*options)

type options struct {
	fs         afero.Fs
	installDir string
}

// WithFs replaces the OS filesystem used for file reads and image output.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithInstallDir sets the directory that relative output paths resolve against.
func WithInstallDir(dir string) Option {
	return func(o *options) { o.installDir = dir }
}

// New initializes the application with all dependencies.
func New(cfg *config.Config, logger *common.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.installDir == "" {
		o.installDir = config.InstallDir()
	}

	a := &App{
		Config: cfg,
		Logger: logger,
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool catalog: %w", err)
	}
	a.Catalog = cat

	outputDir, err := config.ResolveOutputDir(cfg.Output.Directory, o.installDir)
	if err != nil {
		return nil, err
	}
	a.OutputDir = outputDir
	if outputDir == "" {
		logger.Warn().Msg("no output directory configured, response images will not be saved")
	}
	if cfg.API.APIKey == "" {
		logger.Warn().Msg("VISION_AGENT_API_KEY is not set, requests will be sent without credentials")
	}

	a.Metrics, err = metrics.NewPrometheusRecorder()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	baseURL := config.ResolveBaseURL(cfg.API.BaseURL, cat.BaseURL())

	a.Dispatcher, err = dispatch.New(dispatch.Options{
		Catalog:       cat,
		BaseURL:       baseURL,
		APIKey:        cfg.API.APIKey,
		OutputDir:     outputDir,
		DisplayImages: cfg.Output.DisplayImages,
		UniqueNames:   cfg.Output.UniqueNames,
		HTTPClient:    &http.Client{Timeout: cfg.API.GetTimeout()},
		Fs:            o.fs,
		Metrics:       a.Metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	a.MCPServer = mcp.NewServer(cfg.Server.Name, config.GetVersion(), a.Dispatcher, logger)

	logger.Info().
		Int("tools", cat.Len()).
		Str("base_url", baseURL).
		Str("output_dir", outputDir).
		Msg("application initialization complete")

	return a, nil
}
