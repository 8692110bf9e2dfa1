package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

func (s *Schema) validate(v any, path []string, out *[]Violation) any {
	if v == nil {
		if s.nullable || s.allows("null") {
			return nil
		}
		if len(s.types) > 0 {
			*out = append(*out, violation(path, CodeInvalidType,
				fmt.Sprintf("Expected %s, received null", strings.Join(s.types, " | "))))
			return nil
		}
	}

	if len(s.anyOf) > 0 {
		matched := false
		for _, branch := range s.anyOf {
			var local []Violation
			res := branch.validate(v, path, &local)
			if len(local) == 0 {
				v = res
				matched = true
				break
			}
		}
		if !matched {
			*out = append(*out, violation(path, CodeInvalidUnion, "Invalid input"))
			return v
		}
	}

	if len(s.types) > 0 && v != nil {
		coerced, ok := s.matchType(v)
		if !ok {
			*out = append(*out, violation(path, CodeInvalidType,
				fmt.Sprintf("Expected %s, received %s", strings.Join(s.types, " | "), typeOf(v))))
			return v
		}
		v = coerced
	}

	if s.hasConst && !equal(v, s.constValue) {
		*out = append(*out, violation(path, CodeInvalidLiteral,
			fmt.Sprintf("Invalid literal value, expected %s", literal(s.constValue))))
	}

	if len(s.enum) > 0 && !s.inEnum(v) {
		options := make([]string, len(s.enum))
		for i, e := range s.enum {
			options[i] = literal(e)
		}
		*out = append(*out, violation(path, CodeInvalidEnumValue,
			fmt.Sprintf("Invalid enum value. Expected %s, received %s", strings.Join(options, " | "), literal(v))))
	}

	switch val := v.(type) {
	case string:
		s.checkString(val, path, out)
	case map[string]any:
		return s.validateObject(val, path, out)
	case []any:
		return s.validateArray(val, path, out)
	case bool, nil:
	default:
		if f, ok := toFloat(val); ok {
			s.checkNumber(f, path, out)
		}
	}
	return v
}

func (s *Schema) validateObject(in map[string]any, path []string, out *[]Violation) map[string]any {
	result := make(map[string]any, len(in))
	for k, v := range in {
		result[k] = v
	}

	for _, name := range s.propOrder {
		child := s.properties[name]
		v, present := in[name]
		if !present {
			if child.hasDefault {
				result[name] = deepCopy(child.defValue)
			}
			continue
		}
		result[name] = child.validate(v, appendPath(path, name), out)
	}

	for _, name := range s.required {
		if _, present := result[name]; !present {
			*out = append(*out, violation(appendPath(path, name), CodeRequired, "Required"))
		}
	}
	return result
}

func (s *Schema) validateArray(in []any, path []string, out *[]Violation) []any {
	if s.minItems != nil && len(in) < *s.minItems {
		*out = append(*out, violation(path, CodeTooSmall,
			fmt.Sprintf("Array must contain at least %d element(s)", *s.minItems)))
	}
	if s.maxItems != nil && len(in) > *s.maxItems {
		*out = append(*out, violation(path, CodeTooBig,
			fmt.Sprintf("Array must contain at most %d element(s)", *s.maxItems)))
	}

	result := make([]any, len(in))
	for i, item := range in {
		if s.items == nil {
			result[i] = item
			continue
		}
		result[i] = s.items.validate(item, appendPath(path, strconv.Itoa(i)), out)
	}
	return result
}

func (s *Schema) checkString(v string, path []string, out *[]Violation) {
	n := utf8.RuneCountInString(v)
	if s.minLength != nil && n < *s.minLength {
		*out = append(*out, violation(path, CodeTooSmall,
			fmt.Sprintf("String must contain at least %d character(s)", *s.minLength)))
	}
	if s.maxLength != nil && n > *s.maxLength {
		*out = append(*out, violation(path, CodeTooBig,
			fmt.Sprintf("String must contain at most %d character(s)", *s.maxLength)))
	}
}

func (s *Schema) checkNumber(f float64, path []string, out *[]Violation) {
	if s.minimum != nil && f < *s.minimum {
		*out = append(*out, violation(path, CodeTooSmall,
			"Number must be greater than or equal to "+formatNumber(*s.minimum)))
	}
	if s.exclusiveMinimum != nil && f <= *s.exclusiveMinimum {
		*out = append(*out, violation(path, CodeTooSmall,
			"Number must be greater than "+formatNumber(*s.exclusiveMinimum)))
	}
	if s.maximum != nil && f > *s.maximum {
		*out = append(*out, violation(path, CodeTooBig,
			"Number must be less than or equal to "+formatNumber(*s.maximum)))
	}
	if s.exclusiveMaximum != nil && f >= *s.exclusiveMaximum {
		*out = append(*out, violation(path, CodeTooBig,
			"Number must be less than "+formatNumber(*s.exclusiveMaximum)))
	}
}

func (s *Schema) allows(t string) bool {
	for _, have := range s.types {
		if have == t {
			return true
		}
	}
	return false
}

// matchType returns v unchanged when it already has one of the declared
// types, otherwise the first successful coercion.
func (s *Schema) matchType(v any) (any, bool) {
	for _, t := range s.types {
		if isType(v, t) {
			return v, true
		}
	}
	for _, t := range s.types {
		if c, ok := coerce(v, t); ok {
			return c, true
		}
	}
	return nil, false
}

func isType(v any, t string) bool {
	switch t {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok && !isString(v)
	case "integer":
		f, ok := toFloat(v)
		return ok && !isString(v) && f == math.Trunc(f) && !math.IsInf(f, 0)
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "null":
		return v == nil
	}
	return false
}

func coerce(v any, t string) (any, bool) {
	str, ok := v.(string)
	if !ok {
		return nil, false
	}
	str = strings.TrimSpace(str)
	switch t {
	case "number":
		if f, err := strconv.ParseFloat(str, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	case "integer":
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			return float64(n), true
		}
	case "boolean":
		switch str {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return nil, false
}

func (s *Schema) inEnum(v any) bool {
	for _, e := range s.enum {
		if equal(v, e) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB && !isString(a) && !isString(b) {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func literal(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	if f, ok := toFloat(v); ok {
		return formatNumber(f)
	}
	return fmt.Sprintf("%v", v)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}
