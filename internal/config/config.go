// Package config loads the process-wide configuration consumed by the
// dispatcher and the MCP host glue.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/vision-mcp/internal/common"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig         `toml:"server"`
	API     APIConfig            `toml:"api"`
	Catalog CatalogConfig        `toml:"catalog"`
	Output  OutputConfig         `toml:"output"`
	Metrics MetricsConfig        `toml:"metrics"`
	Logging common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains MCP host transport settings.
type ServerConfig struct {
	Name      string `toml:"name"`
	Transport string `toml:"transport"` // stdio or http
	Port      string `toml:"port"`
}

// APIConfig describes the remote vision tools API.
type APIConfig struct {
	// BaseURL overrides the catalog's baseUrl. Empty defers to the catalog.
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// Timeout bounds each HTTP exchange locally. Empty means no local limit;
	// the per-call timeout argument is forwarded to the API instead.
	Timeout string `toml:"timeout"`
}

// GetTimeout parses the local HTTP timeout. Zero disables it.
func (c *APIConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// CatalogConfig selects the tool catalog file. An empty path uses the
// catalog embedded in the binary.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// OutputConfig controls persistence and echoing of response images.
type OutputConfig struct {
	Directory     string `toml:"directory"`
	DisplayImages bool   `toml:"display_images"`
	// UniqueNames writes output-<uuid>.png instead of a shared output.png.
	UniqueNames bool `toml:"unique_names"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Address string `toml:"address"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables already set are left untouched. With no files the implicit
// .env is loaded if present; files named explicitly must exist.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if key := os.Getenv("VISION_AGENT_API_KEY"); key != "" {
		config.API.APIKey = key
	}
	if u := os.Getenv("VISION_API_BASE_URL"); u != "" {
		config.API.BaseURL = u
	}
	if timeout := os.Getenv("VISION_API_TIMEOUT"); timeout != "" {
		config.API.Timeout = timeout
	}
	if dir := os.Getenv("OUTPUT_DIRECTORY"); dir != "" {
		config.Output.Directory = dir
	}
	if display := os.Getenv("IMAGE_DISPLAY_ENABLED"); display != "" {
		config.Output.DisplayImages = display == "true"
	}
	if unique := os.Getenv("OUTPUT_UNIQUE_NAMES"); unique != "" {
		if b, err := strconv.ParseBool(unique); err == nil {
			config.Output.UniqueNames = b
		}
	}
	if path := os.Getenv("VISION_CATALOG_PATH"); path != "" {
		config.Catalog.Path = path
	}
	if transport := os.Getenv("VISION_MCP_TRANSPORT"); transport != "" {
		config.Server.Transport = transport
	}
	if port := os.Getenv("VISION_MCP_PORT"); port != "" {
		config.Server.Port = port
	}
	if addr := os.Getenv("VISION_METRICS_ADDR"); addr != "" {
		config.Metrics.Address = addr
	}
	if level := os.Getenv("VISION_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, transport, port, catalogPath string) {
	if transport != "" {
		config.Server.Transport = transport
	}
	if port != "" {
		config.Server.Port = port
	}
	if catalogPath != "" {
		config.Catalog.Path = catalogPath
	}
}

// Validate checks settings that would otherwise fail later at dispatch time.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport %q, valid values are 'stdio' and 'http'", c.Server.Transport)
	}
	if c.API.BaseURL != "" && !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout != "" {
		if _, err := time.ParseDuration(c.API.Timeout); err != nil {
			return fmt.Errorf("invalid api.timeout %q: %w", c.API.Timeout, err)
		}
	}
	return nil
}

// ResolveBaseURL picks the API base URL: the configured value first, then
// the catalog's baseUrl, then DefaultAPIBaseURL.
func ResolveBaseURL(configured, catalogURL string) string {
	switch {
	case configured != "":
		return configured
	case catalogURL != "":
		return catalogURL
	default:
		return DefaultAPIBaseURL
	}
}

// ResolveOutputDir expands the configured output directory. A leading "~"
// is replaced by the user's home directory and a leading "." is resolved
// against installDir (the directory holding the executable). An empty
// directory stays empty: response images are then not persisted.
func ResolveOutputDir(dir, installDir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, dir[1:])
	}
	if strings.HasPrefix(dir, ".") {
		dir = filepath.Join(installDir, dir)
	}
	return filepath.Clean(dir), nil
}

// InstallDir returns the directory containing the running executable.
func InstallDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
