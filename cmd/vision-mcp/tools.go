package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/bobmcallan/vision-mcp/internal/app"
	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/common"
)

func newToolsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke catalog tools",
	}
	cmd.AddCommand(newToolsListCmd(root))
	cmd.AddCommand(newToolsCallCmd(root))
	return cmd
}

func newToolsListCmd(root *rootFlags) *cobra.Command {
	var (
		catalogPath string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := catalogPath
			if path == "" {
				cfg, err := loadConfig(root)
				if err != nil {
					return err
				}
				path = cfg.Catalog.Path
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			if asJSON {
				return writeToolsJSON(cmd.OutOrStdout(), cat.Tools())
			}
			return writeToolsTable(cmd.OutOrStdout(), cat.Tools())
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Tool catalog file (default: configured or embedded catalog)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full tool descriptors as JSON")
	return cmd
}

func writeToolsTable(w io.Writer, tools []catalog.Tool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tBODY")
	for _, t := range tools {
		body := t.RequestBodyContentType
		if body == "" {
			body = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Method, t.PathTemplate, body)
	}
	return tw.Flush()
}

func writeToolsJSON(w io.Writer, tools []catalog.Tool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tools)
}

func newToolsCallCmd(root *rootFlags) *cobra.Command {
	var (
		argsJSON  string
		argsFile  string
		showImage bool
	)
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool against the API and print the result",
		Example: `  vision-mcp tools call owlv2 \
    --args '{"requestBody":{"prompts":["dog"],"image":"/tmp/dog.jpg"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			args, err := readToolArgs(argsJSON, argsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			// stdout carries the result; log lines go to stderr, quiet unless asked.
			if root.logLevel == "" {
				cfg.Logging.Level = "warn"
			}
			logger := common.NewLoggerWithOutput(cfg.Logging.Level, cmd.ErrOrStderr())
			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			result := application.Dispatcher.Invoke(cmd.Context(), positional[0], args)
			return writeResult(cmd.OutOrStdout(), result, showImage)
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "Read tool arguments from a JSON file (- for stdin)")
	cmd.Flags().BoolVar(&showImage, "show-image-data", false, "Print base64 image data instead of a summary")
	return cmd
}

// readToolArgs decodes the tool arguments. No arguments yields an empty object.
func readToolArgs(argsJSON, argsFile string, stdin io.Reader) (map[string]any, error) {
	if argsJSON != "" && argsFile != "" {
		return nil, fmt.Errorf("use either --args or --args-file, not both")
	}

	var raw []byte
	switch {
	case argsJSON != "":
		raw = []byte(argsJSON)
	case argsFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read arguments from stdin: %w", err)
		}
		raw = data
	case argsFile != "":
		data, err := os.ReadFile(argsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read arguments file %s: %w", argsFile, err)
		}
		raw = data
	default:
		return map[string]any{}, nil
	}

	if strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// writeResult prints each content item of a tool result.
func writeResult(w io.Writer, result *mcpgo.CallToolResult, showImage bool) error {
	for _, c := range result.Content {
		switch item := c.(type) {
		case mcpgo.TextContent:
			fmt.Fprintln(w, item.Text)
		case mcpgo.ImageContent:
			if showImage {
				fmt.Fprintln(w, item.Data)
				continue
			}
			fmt.Fprintf(w, "[image %s, %s base64]\n", item.MIMEType, common.FormatBytes(len(item.Data)))
		default:
			out, err := json.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(out))
		}
	}
	return nil
}
