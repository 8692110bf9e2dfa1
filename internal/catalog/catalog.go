// Package catalog defines the tool descriptor shape and loads the static
// tool catalog from a declarative file.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/vision_tools.json
var embeddedCatalog []byte

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
)

// Request body content types.
const (
	ContentTypeJSON       = "application/json"
	ContentTypeMultipart  = "multipart/form-data"
	ContentTypeURLEncoded = "application/x-www-form-urlencoded"
)

// allowedMethods is the whitelist of HTTP methods for catalog tools.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

var pathTokenRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Parameter routes one argument into the URL path, query string or headers.
type Parameter struct {
	Name string `json:"name" yaml:"name"`
	In   string `json:"in" yaml:"in"`
}

// Tool describes how a named operation becomes an HTTP request.
type Tool struct {
	Name                   string           `json:"name" yaml:"name"`
	Description            string           `json:"description" yaml:"description"`
	InputSchema            map[string]any   `json:"inputSchema" yaml:"inputSchema"`
	Method                 string           `json:"method" yaml:"method"`
	PathTemplate           string           `json:"pathTemplate" yaml:"pathTemplate"`
	ExecutionParameters    []Parameter      `json:"executionParameters" yaml:"executionParameters"`
	RequestBodyContentType string           `json:"requestBodyContentType,omitempty" yaml:"requestBodyContentType,omitempty"`
	SecurityRequirements   []map[string]any `json:"securityRequirements" yaml:"securityRequirements"`
}

// PathTokens returns the {param} placeholders of the path template.
func (t Tool) PathTokens() []string {
	matches := pathTokenRe.FindAllStringSubmatch(t.PathTemplate, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// File is the on-disk catalog document.
type File struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Tools   []Tool `json:"tools" yaml:"tools"`
}

// Catalog is the immutable, ordered set of tools served by the process.
type Catalog struct {
	name    string
	version string
	baseURL string
	tools   []Tool
	byName  map[string]int
}

// New builds a catalog from already validated tools.
func New(name, version, baseURL string, tools []Tool) *Catalog {
	c := &Catalog{
		name:    name,
		version: version,
		baseURL: baseURL,
		tools:   make([]Tool, len(tools)),
		byName:  make(map[string]int, len(tools)),
	}
	copy(c.tools, tools)
	for i, t := range c.tools {
		c.byName[t.Name] = i
	}
	return c
}

// Name returns the catalog name.
func (c *Catalog) Name() string { return c.name }

// Version returns the catalog version.
func (c *Catalog) Version() string { return c.version }

// BaseURL returns the API base URL declared by the catalog, if any.
func (c *Catalog) BaseURL() string { return c.baseURL }

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Tools returns a copy of the tools in catalog order.
func (c *Catalog) Tools() []Tool {
	result := make([]Tool, len(c.tools))
	copy(result, c.tools)
	return result
}

// Load reads a catalog file. An empty path loads the embedded catalog.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(embeddedCatalog, ".json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, ext string) (*Catalog, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
	}

	for i := range f.Tools {
		schema, err := normalizeSchema(f.Tools[i].InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", f.Tools[i].Name, err)
		}
		f.Tools[i].InputSchema = schema
	}

	if err := ValidateCatalog(f.Tools); err != nil {
		return nil, err
	}
	return New(f.Name, f.Version, f.BaseURL, f.Tools), nil
}

// normalizeSchema round-trips a schema through JSON so that YAML and JSON
// sources produce identical value types (float64 numbers, map[string]any).
func normalizeSchema(schema map[string]any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object"}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("input schema is not JSON-compatible: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("input schema is not an object: %w", err)
	}
	return out, nil
}

// Marshal encodes a catalog document as YAML or JSON, by extension.
func Marshal(f File, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		out, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
}
