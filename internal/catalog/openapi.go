package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// maxToolNameLength is the longest tool name MCP hosts reliably accept.
const maxToolNameLength = 64

// preferredBodyTypes orders request body media types when an operation
// accepts several.
var preferredBodyTypes = []string{ContentTypeJSON, ContentTypeMultipart, ContentTypeURLEncoded}

// LoadOpenAPI reads and validates an OpenAPI 3 document from disk.
func LoadOpenAPI(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document %s: %w", path, err)
	}
	return doc, nil
}

// FromOpenAPI generates a catalog document with one tool per operation.
// Parameters keep their declared location (cookie parameters are dropped),
// JSON bodies are inlined as a requestBody object property and any other
// body media type becomes a requestBody string in key=value&... form.
func FromOpenAPI(doc *openapi3.T) (File, error) {
	f := File{}
	if doc.Info != nil {
		f.Name = doc.Info.Title
		f.Version = doc.Info.Version
	}
	if len(doc.Servers) > 0 {
		f.BaseURL = strings.TrimSuffix(doc.Servers[0].URL, "/")
	}
	if doc.Paths == nil {
		return f, nil
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for p := range pathMap {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		item := pathMap[p]
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			tool, err := toolFromOperation(doc, p, method, item, ops[method])
			if err != nil {
				return File{}, err
			}
			f.Tools = append(f.Tools, tool)
		}
	}

	if err := ValidateCatalog(f.Tools); err != nil {
		return File{}, err
	}
	return f, nil
}

func toolFromOperation(doc *openapi3.T, path, method string, item *openapi3.PathItem, op *openapi3.Operation) (Tool, error) {
	name := toolName(op.OperationID, method, path)

	description := op.Description
	if description == "" {
		description = op.Summary
	}
	if description == "" {
		description = fmt.Sprintf("Executes %s %s", strings.ToUpper(method), path)
	}

	properties := map[string]any{}
	var required []string
	var params []Parameter

	all := append(openapi3.Parameters{}, item.Parameters...)
	all = append(all, op.Parameters...)
	for _, ref := range all {
		if ref == nil || ref.Value == nil {
			continue
		}
		pv := ref.Value
		if pv.In != InPath && pv.In != InQuery && pv.In != InHeader {
			continue
		}
		prop := schemaToMap(pv.Schema, map[string]bool{})
		if pv.Description != "" {
			prop["description"] = pv.Description
		}
		properties[pv.Name] = prop
		if pv.Required {
			required = append(required, pv.Name)
		}
		params = append(params, Parameter{Name: pv.Name, In: pv.In})
	}

	contentType := ""
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		contentType = pickBodyType(body.Content)
		if contentType == ContentTypeJSON {
			prop := schemaToMap(body.Content[contentType].Schema, map[string]bool{})
			prop["description"] = "The JSON request body."
			properties["requestBody"] = prop
		} else if contentType != "" {
			properties["requestBody"] = map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("Request body (content type: %s)", contentType),
			}
		}
		if contentType != "" && body.Required {
			required = append(required, "requestBody")
		}
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}

	security := op.Security
	if security == nil {
		security = &doc.Security
	}
	var requirements []map[string]any
	for _, req := range *security {
		entry := map[string]any{}
		for scheme, scopes := range req {
			entry[scheme] = scopes
		}
		requirements = append(requirements, entry)
	}
	if requirements == nil {
		requirements = []map[string]any{}
	}

	normalized, err := normalizeSchema(schema)
	if err != nil {
		return Tool{}, fmt.Errorf("operation %s %s: %w", method, path, err)
	}

	return Tool{
		Name:                   name,
		Description:            description,
		InputSchema:            normalized,
		Method:                 strings.ToLower(method),
		PathTemplate:           path,
		ExecutionParameters:    params,
		RequestBodyContentType: contentType,
		SecurityRequirements:   requirements,
	}, nil
}

func toolName(operationID, method, path string) string {
	name := operationID
	if name == "" {
		name = strings.ToLower(method) + path
	}
	name = strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
	if len(name) > maxToolNameLength {
		name = name[:maxToolNameLength]
	}
	return name
}

func pickBodyType(content openapi3.Content) string {
	for _, ct := range preferredBodyTypes {
		if _, ok := content[ct]; ok {
			return ct
		}
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// schemaToMap inlines a (possibly referenced) schema into the plain map form
// used by descriptors. Recursive references collapse to an empty schema.
func schemaToMap(ref *openapi3.SchemaRef, visiting map[string]bool) map[string]any {
	out := map[string]any{}
	if ref == nil || ref.Value == nil {
		return out
	}
	if ref.Ref != "" {
		if visiting[ref.Ref] {
			return out
		}
		visiting[ref.Ref] = true
		defer delete(visiting, ref.Ref)
	}
	s := ref.Value

	if s.Type != nil {
		types := s.Type.Slice()
		if len(types) == 1 {
			out["type"] = types[0]
		} else if len(types) > 1 {
			out["type"] = types
		}
	}
	if s.Title != "" {
		out["title"] = s.Title
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	if s.Nullable {
		out["nullable"] = true
	}
	if s.Min != nil {
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = *s.Min
		} else {
			out["minimum"] = *s.Min
		}
	}
	if s.Max != nil {
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = *s.Max
		} else {
			out["maximum"] = *s.Max
		}
	}
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.Items != nil {
		out["items"] = schemaToMap(s.Items, visiting)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = schemaToMap(p, visiting)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if branches := composite(s.AnyOf, visiting); branches != nil {
		out["anyOf"] = branches
	}
	if branches := composite(s.OneOf, visiting); branches != nil {
		out["oneOf"] = branches
	}
	if len(s.AllOf) > 0 {
		// allOf is flattened: later branches win on conflicting keys.
		for _, branch := range s.AllOf {
			for k, v := range schemaToMap(branch, visiting) {
				if existing, ok := out[k].(map[string]any); ok && k == "properties" {
					for pk, pv := range v.(map[string]any) {
						existing[pk] = pv
					}
					continue
				}
				out[k] = v
			}
		}
	}
	return out
}

func composite(refs openapi3.SchemaRefs, visiting map[string]bool) []any {
	if len(refs) == 0 {
		return nil
	}
	branches := make([]any, 0, len(refs))
	for _, r := range refs {
		branches = append(branches, schemaToMap(r, visiting))
	}
	return branches
}
