package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateTool validates a single catalog tool entry.
func ValidateTool(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if t.Method == "" {
		return fmt.Errorf("tool %q has empty method", t.Name)
	}
	if !allowedMethods[strings.ToUpper(t.Method)] {
		return fmt.Errorf("tool %q has unsupported method %q", t.Name, t.Method)
	}
	if t.PathTemplate == "" {
		return fmt.Errorf("tool %q has empty path template", t.Name)
	}
	if !strings.HasPrefix(t.PathTemplate, "/") {
		return fmt.Errorf("tool %q has invalid path %q (must start with /)", t.Name, t.PathTemplate)
	}
	if strings.Contains(t.PathTemplate, "..") {
		return fmt.Errorf("tool %q has invalid path %q (contains ..)", t.Name, t.PathTemplate)
	}

	pathParams := make(map[string]bool)
	for _, p := range t.ExecutionParameters {
		if p.Name == "" {
			return fmt.Errorf("tool %q has a parameter with empty name", t.Name)
		}
		switch p.In {
		case InPath:
			pathParams[p.Name] = true
		case InQuery, InHeader:
		default:
			return fmt.Errorf("tool %q parameter %q has unsupported location %q", t.Name, p.Name, p.In)
		}
	}
	for _, token := range t.PathTokens() {
		if !pathParams[token] {
			return fmt.Errorf("tool %q path token {%s} has no path parameter", t.Name, token)
		}
	}

	switch t.RequestBodyContentType {
	case "", ContentTypeJSON, ContentTypeMultipart, ContentTypeURLEncoded:
	default:
		return fmt.Errorf("tool %q has unsupported body content type %q", t.Name, t.RequestBodyContentType)
	}
	return nil
}

// ValidateCatalog checks every tool and rejects duplicate names.
// All problems are reported together.
func ValidateCatalog(tools []Tool) error {
	var errs []error
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if err := ValidateTool(t); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate tool %q", t.Name))
			continue
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}
