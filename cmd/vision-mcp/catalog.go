package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/schema"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Generate and validate tool catalog files",
	}
	cmd.AddCommand(newCatalogGenerateCmd())
	cmd.AddCommand(newCatalogValidateCmd())
	return cmd
}

func newCatalogGenerateCmd() *cobra.Command {
	var (
		out     string
		format  string
		name    string
		version string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "generate <openapi-file>",
		Short: "Generate a tool catalog from an OpenAPI 3 document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := catalog.LoadOpenAPI(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f, err := catalog.FromOpenAPI(doc)
			if err != nil {
				return fmt.Errorf("failed to generate catalog: %w", err)
			}
			if name != "" {
				f.Name = name
			}
			if version != "" {
				f.Version = version
			}
			if baseURL != "" {
				f.BaseURL = baseURL
			}

			ext := "." + format
			if out != "" && format == "" {
				ext = filepath.Ext(out)
			}
			data, err := catalog.Marshal(f, ext)
			if err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("failed to write catalog %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d tools to %s\n", len(f.Tools), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml (default from --out extension, else json)")
	cmd.Flags().StringVar(&name, "name", "", "Catalog name (default: OpenAPI info.title)")
	cmd.Flags().StringVar(&version, "catalog-version", "", "Catalog version (default: OpenAPI info.version)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default: first OpenAPI server)")
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog-file]",
		Short: "Check a catalog file and compile every input schema",
		Long:  "Check a catalog file and compile every input schema. With no argument the embedded catalog is checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			if err := compileSchemas(cat); err != nil {
				return err
			}
			label := path
			if label == "" {
				label = "embedded catalog"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tools OK\n", label, cat.Len())
			return nil
		},
	}
}

// compileSchemas reports every tool whose input schema does not compile.
func compileSchemas(cat *catalog.Catalog) error {
	var errs []error
	for _, t := range cat.Tools() {
		if _, err := schema.Compile(t.InputSchema); err != nil {
			errs = append(errs, fmt.Errorf("tool %q: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
