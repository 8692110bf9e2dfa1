package schema

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *Schema {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(src), &raw))
	s, err := Compile(raw)
	require.NoError(t, err)
	return s
}

func violations(t *testing.T, err error) *ValidationError {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve
}

const detectSchema = `{
	"type": "object",
	"properties": {
		"prompts": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"image": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1, "default": 0.1},
		"model": {"type": "string", "enum": ["owlv2", "countgd"], "default": "owlv2"},
		"timeout": {"anyOf": [{"type": "integer"}, {"type": "null"}], "default": 30},
		"chunk": {"type": "integer", "exclusiveMinimum": 0},
		"verbose": {"type": "boolean"}
	},
	"required": ["prompts", "image"]
}`

func TestValidate_AppliesDefaults(t *testing.T) {
	s := mustCompile(t, detectSchema)

	in := map[string]any{"prompts": []any{"cat"}, "image": "/tmp/a.png"}
	out, err := s.ValidateArgs(in)
	require.NoError(t, err)

	assert.Equal(t, 0.1, out["confidence"])
	assert.Equal(t, "owlv2", out["model"])
	assert.Equal(t, float64(30), out["timeout"])
	assert.NotContains(t, in, "confidence", "input must not be mutated")
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	s := mustCompile(t, detectSchema)

	_, err := s.ValidateArgs(map[string]any{
		"prompts":    []any{},
		"confidence": 2.5,
		"model":      "yolo",
		"chunk":      0,
	})
	ve := violations(t, err)

	byPath := map[string]string{}
	for _, v := range ve.Violations {
		byPath[v.PathString()] = v.Code
	}
	assert.Equal(t, CodeTooSmall, byPath["prompts"])
	assert.Equal(t, CodeRequired, byPath["image"])
	assert.Equal(t, CodeTooBig, byPath["confidence"])
	assert.Equal(t, CodeInvalidEnumValue, byPath["model"])
	assert.Equal(t, CodeTooSmall, byPath["chunk"])
	assert.Len(t, ve.Violations, 5)

	assert.Contains(t, err.Error(), "image (required): Required")
	assert.Contains(t, err.Error(), "model (invalid_enum_value): Invalid enum value. Expected 'owlv2' | 'countgd', received 'yolo'")
}

func TestValidate_NestedPaths(t *testing.T) {
	s := mustCompile(t, `{
		"type": "object",
		"properties": {
			"requestBody": {
				"type": "object",
				"properties": {
					"prompts": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}`)

	_, err := s.ValidateArgs(map[string]any{
		"requestBody": map[string]any{"prompts": []any{"ok", 7.0}},
	})
	ve := violations(t, err)
	require.Len(t, ve.Violations, 1)
	assert.Equal(t, "requestBody.prompts.1", ve.Violations[0].PathString())
	assert.Equal(t, CodeInvalidType, ve.Violations[0].Code)
	assert.Equal(t, "Expected string, received number", ve.Violations[0].Message)
}

func TestValidate_Coercion(t *testing.T) {
	s := mustCompile(t, `{
		"type": "object",
		"properties": {
			"n": {"type": "integer"},
			"f": {"type": "number"},
			"b": {"type": "boolean"},
			"whole": {"type": "integer"}
		}
	}`)

	out, err := s.ValidateArgs(map[string]any{"n": "42", "f": "0.5", "b": "true", "whole": 3.0})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["n"])
	assert.Equal(t, 0.5, out["f"])
	assert.Equal(t, true, out["b"])
	assert.Equal(t, 3.0, out["whole"])

	_, err = s.ValidateArgs(map[string]any{"n": 1.5, "b": "yes"})
	ve := violations(t, err)
	assert.ElementsMatch(t, []string{"n", "b"}, ve.Paths())
}

func TestValidate_PassesUnknownFields(t *testing.T) {
	s := mustCompile(t, `{"type": "object", "properties": {"a": {"type": "string"}}}`)

	out, err := s.ValidateArgs(map[string]any{"a": "x", "extra": map[string]any{"k": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": 1}, out["extra"])
}

func TestValidate_Nullable(t *testing.T) {
	s := mustCompile(t, `{
		"type": "object",
		"properties": {
			"a": {"type": "string", "nullable": true},
			"b": {"type": "string"},
			"c": {"type": ["string", "null"]}
		}
	}`)

	_, err := s.ValidateArgs(map[string]any{"a": nil, "c": nil})
	require.NoError(t, err)

	_, err = s.ValidateArgs(map[string]any{"b": nil})
	ve := violations(t, err)
	require.Len(t, ve.Violations, 1)
	assert.Equal(t, "Expected string, received null", ve.Violations[0].Message)
}

func TestValidate_UnionAndLiteral(t *testing.T) {
	s := mustCompile(t, `{
		"type": "object",
		"properties": {
			"u": {"anyOf": [{"type": "string", "minLength": 3}, {"type": "integer"}]},
			"o": {"oneOf": [{"const": "fixed"}]},
			"k": {"const": "v1"}
		}
	}`)

	out, err := s.ValidateArgs(map[string]any{"u": "abcd", "o": "fixed", "k": "v1"})
	require.NoError(t, err)
	assert.Equal(t, "abcd", out["u"])

	_, err = s.ValidateArgs(map[string]any{"u": "ab", "o": "other", "k": "v2"})
	ve := violations(t, err)
	codes := map[string]string{}
	for _, v := range ve.Violations {
		codes[v.PathString()] = v.Code
	}
	assert.Equal(t, CodeInvalidUnion, codes["u"])
	assert.Equal(t, CodeInvalidUnion, codes["o"])
	assert.Equal(t, CodeInvalidLiteral, codes["k"])
}

func TestValidate_StringAndArrayBounds(t *testing.T) {
	s := mustCompile(t, `{
		"type": "object",
		"properties": {
			"s": {"type": "string", "minLength": 2, "maxLength": 3},
			"a": {"type": "array", "maxItems": 1}
		}
	}`)

	_, err := s.ValidateArgs(map[string]any{"s": "abcd", "a": []any{1, 2}})
	ve := violations(t, err)
	require.Len(t, ve.Violations, 2)
	assert.Equal(t, "a (too_big): Array must contain at most 1 element(s)", ve.Violations[0].String())
	assert.Equal(t, "s (too_big): String must contain at most 3 character(s)", ve.Violations[1].String())
}

func TestValidate_ExclusiveBooleanForm(t *testing.T) {
	s := mustCompile(t, `{"type": "number", "minimum": 0, "exclusiveMinimum": true}`)

	_, err := s.Validate(0.0)
	ve := violations(t, err)
	assert.Equal(t, "Number must be greater than 0", ve.Violations[0].Message)

	_, err = s.Validate(0.1)
	assert.NoError(t, err)
}

func TestValidate_RootTypeMismatch(t *testing.T) {
	s := mustCompile(t, `{"type": "object"}`)

	_, err := s.Validate("nope")
	ve := violations(t, err)
	assert.Equal(t, "(root) (invalid_type): Expected object, received string", ve.Error())
}

func TestValidate_DefaultsAreCopied(t *testing.T) {
	s := mustCompile(t, `{"type": "object", "properties": {"tags": {"type": "array", "default": ["a"]}}}`)

	first, err := s.ValidateArgs(nil)
	require.NoError(t, err)
	first["tags"].([]any)[0] = "changed"

	second, err := s.ValidateArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, second["tags"])
}

func TestCompile_Errors(t *testing.T) {
	cases := map[string]map[string]any{
		"bad type":        {"type": "decimal"},
		"type not string": {"type": 5.0},
		"bad properties":  {"properties": []any{}},
		"bad required":    {"required": "a"},
		"bad minimum":     {"minimum": "zero"},
		"nested":          {"properties": map[string]any{"a": map[string]any{"type": "nope"}}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(raw)
			assert.Error(t, err)
		})
	}

	s, err := Compile(nil)
	require.NoError(t, err)
	_, err = s.Validate(map[string]any{"anything": true})
	assert.NoError(t, err)
}

func TestCache(t *testing.T) {
	c := NewCache()
	raw := map[string]any{"type": "object"}

	var wg sync.WaitGroup
	results := make([]*Schema, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Get("tool", raw)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, 1, c.Len())

	_, err := c.Get("broken", map[string]any{"type": "bogus"})
	assert.Error(t, err)
	_, err = c.Get("broken", nil)
	assert.Error(t, err, "compile errors are cached per key")
}
