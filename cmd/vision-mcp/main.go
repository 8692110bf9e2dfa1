// Command vision-mcp serves the vision tools API to MCP hosts.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/config"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFiles []string
	envFiles    []string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "vision-mcp",
		Short:         "MCP server for the vision tools API",
		Long:          "vision-mcp exposes a catalog of remote vision tools (detection, OCR, segmentation, generation) to MCP hosts over stdio or streamable HTTP.",
		Version:       config.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVarP(&flags.configFiles, "config", "c", nil, "Configuration file path (can be repeated, later files override earlier ones)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Extra .env file to load (default .env)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newToolsCmd(flags))
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig loads configuration with priority defaults -> files -> .env and
// environment. Flag overrides are applied by the caller.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return nil, err
	}

	files := flags.configFiles
	if len(files) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(files...)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg, nil
}

// configSearchPaths lists the locations tried when no --config flag is given.
// Binary-relative paths come first so the config is found even when the
// working directory differs from the binary location.
func configSearchPaths() []string {
	dir := config.InstallDir()
	return []string{
		filepath.Join(dir, "vision-mcp.toml"),
		filepath.Join(dir, "config", "vision-mcp.toml"),
		"vision-mcp.toml",
		filepath.Join("config", "vision-mcp.toml"),
	}
}

// setupLogger creates the process logger from config.
func setupLogger(cfg *config.Config) *common.Logger {
	return common.NewLoggerFromConfig(cfg.Logging)
}
