// Package schema validates tool arguments against the JSON-Schema subset
// used by tool descriptors. Schemas are compiled into a tree once and then
// walked directly for each value; no code is generated.
package schema

import (
	"fmt"
	"sort"
)

// Violation codes.
const (
	CodeInvalidType      = "invalid_type"
	CodeRequired         = "required"
	CodeTooSmall         = "too_small"
	CodeTooBig           = "too_big"
	CodeInvalidEnumValue = "invalid_enum_value"
	CodeInvalidLiteral   = "invalid_literal"
	CodeInvalidUnion     = "invalid_union"
)

var knownTypes = map[string]bool{
	"object": true, "array": true, "string": true, "number": true,
	"integer": true, "boolean": true, "null": true,
}

// Schema is a compiled schema node.
type Schema struct {
	types      []string
	properties map[string]*Schema
	propOrder  []string
	required   []string
	items      *Schema
	enum       []any
	constValue any
	hasConst   bool
	anyOf      []*Schema
	nullable   bool
	defValue   any
	hasDefault bool

	minimum          *float64
	maximum          *float64
	exclusiveMinimum *float64
	exclusiveMaximum *float64
	minLength        *int
	maxLength        *int
	minItems         *int
	maxItems         *int
}

// Compile builds a schema tree from its decoded JSON form. A nil map
// compiles to a schema that accepts anything.
func Compile(raw map[string]any) (*Schema, error) {
	return compile(raw, "")
}

func compile(raw map[string]any, at string) (*Schema, error) {
	s := &Schema{}
	if raw == nil {
		return s, nil
	}

	switch t := raw["type"].(type) {
	case nil:
	case string:
		s.types = []string{t}
	case []any:
		for _, v := range t {
			name, ok := v.(string)
			if !ok {
				return nil, compileErr(at, "type list must contain strings")
			}
			s.types = append(s.types, name)
		}
	default:
		return nil, compileErr(at, "type must be a string or a list")
	}
	for _, t := range s.types {
		if !knownTypes[t] {
			return nil, compileErr(at, fmt.Sprintf("unknown type %q", t))
		}
	}

	if props, ok := raw["properties"]; ok {
		m, ok := props.(map[string]any)
		if !ok {
			return nil, compileErr(at, "properties must be an object")
		}
		s.properties = make(map[string]*Schema, len(m))
		for name, p := range m {
			pm, ok := p.(map[string]any)
			if !ok {
				return nil, compileErr(join(at, name), "property schema must be an object")
			}
			child, err := compile(pm, join(at, name))
			if err != nil {
				return nil, err
			}
			s.properties[name] = child
			s.propOrder = append(s.propOrder, name)
		}
		sort.Strings(s.propOrder)
	}

	if req, ok := raw["required"]; ok {
		list, ok := req.([]any)
		if !ok {
			return nil, compileErr(at, "required must be a list")
		}
		for _, r := range list {
			name, ok := r.(string)
			if !ok {
				return nil, compileErr(at, "required must contain strings")
			}
			s.required = append(s.required, name)
		}
	}

	if items, ok := raw["items"]; ok {
		im, ok := items.(map[string]any)
		if !ok {
			return nil, compileErr(at, "items must be an object")
		}
		child, err := compile(im, join(at, "[]"))
		if err != nil {
			return nil, err
		}
		s.items = child
	}

	if enum, ok := raw["enum"]; ok {
		list, ok := enum.([]any)
		if !ok {
			return nil, compileErr(at, "enum must be a list")
		}
		s.enum = list
	}

	if c, ok := raw["const"]; ok {
		s.constValue = c
		s.hasConst = true
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		branches, ok := raw[key]
		if !ok {
			continue
		}
		list, ok := branches.([]any)
		if !ok {
			return nil, compileErr(at, key+" must be a list")
		}
		for _, b := range list {
			bm, ok := b.(map[string]any)
			if !ok {
				return nil, compileErr(at, key+" must contain schemas")
			}
			child, err := compile(bm, at)
			if err != nil {
				return nil, err
			}
			s.anyOf = append(s.anyOf, child)
		}
	}

	if n, ok := raw["nullable"].(bool); ok {
		s.nullable = n
	}
	if d, ok := raw["default"]; ok {
		s.defValue = d
		s.hasDefault = true
	}

	var err error
	if s.minimum, err = numberKeyword(raw, "minimum", at); err != nil {
		return nil, err
	}
	if s.maximum, err = numberKeyword(raw, "maximum", at); err != nil {
		return nil, err
	}
	// OpenAPI 3.0 spells exclusive bounds as booleans next to minimum/maximum.
	if b, ok := raw["exclusiveMinimum"].(bool); ok {
		if b {
			s.exclusiveMinimum, s.minimum = s.minimum, nil
		}
	} else if s.exclusiveMinimum, err = numberKeyword(raw, "exclusiveMinimum", at); err != nil {
		return nil, err
	}
	if b, ok := raw["exclusiveMaximum"].(bool); ok {
		if b {
			s.exclusiveMaximum, s.maximum = s.maximum, nil
		}
	} else if s.exclusiveMaximum, err = numberKeyword(raw, "exclusiveMaximum", at); err != nil {
		return nil, err
	}
	for key, dst := range map[string]**int{
		"minLength": &s.minLength, "maxLength": &s.maxLength,
		"minItems": &s.minItems, "maxItems": &s.maxItems,
	} {
		f, err := numberKeyword(raw, key, at)
		if err != nil {
			return nil, err
		}
		if f != nil {
			n := int(*f)
			*dst = &n
		}
	}
	return s, nil
}

func numberKeyword(raw map[string]any, key, at string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, compileErr(at, key+" must be a number")
	}
	return &f, nil
}

func compileErr(at, msg string) error {
	if at == "" {
		return fmt.Errorf("schema: %s", msg)
	}
	return fmt.Errorf("schema at %s: %s", at, msg)
}

func join(at, name string) string {
	if at == "" {
		return name
	}
	return at + "." + name
}

// Validate checks value against the schema. It returns a new value with
// defaults applied and coercions performed; the input is never mutated.
// On failure the error is a *ValidationError listing every violation.
func (s *Schema) Validate(value any) (any, error) {
	var violations []Violation
	out := s.validate(value, nil, &violations)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return out, nil
}

// ValidateArgs validates an argument map and returns the resulting map.
func (s *Schema) ValidateArgs(args map[string]any) (map[string]any, error) {
	var in any = args
	if args == nil {
		in = map[string]any{}
	}
	out, err := s.Validate(in)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, &ValidationError{Violations: []Violation{{
			Code:    CodeInvalidType,
			Message: "Expected object, received " + typeOf(out),
		}}}
	}
	return m, nil
}
