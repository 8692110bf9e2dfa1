package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/files"
)

var jobTool = catalog.Tool{
	Name:         "get_job",
	Method:       "get",
	PathTemplate: "/v1/projects/{project}/jobs/{job_id}",
	ExecutionParameters: []catalog.Parameter{
		{Name: "project", In: catalog.InPath},
		{Name: "job_id", In: catalog.InPath},
		{Name: "tags", In: catalog.InQuery},
		{Name: "timeout", In: catalog.InQuery},
		{Name: "X-Tier", In: catalog.InHeader},
	},
}

func TestRouteParams(t *testing.T) {
	args := map[string]any{
		"project": "a/b c",
		"job_id":  42.0,
		"tags":    []any{"x", "y"},
		"timeout": nil,
		"X-Tier":  "gold",
		"other":   true,
	}

	r, err := RouteParams(jobTool, args)
	require.NoError(t, err)

	assert.Equal(t, "/v1/projects/a%2Fb%20c/jobs/42", r.Path)
	assert.Equal(t, []string{"x", "y"}, r.Query["tags"])
	assert.NotContains(t, r.Query, "timeout")
	assert.Equal(t, []string{"gold"}, r.Header["x-tier"])
	assert.Equal(t, map[string]any{"timeout": nil, "other": true}, r.Remaining)
	assert.Contains(t, args, "project", "input must not be mutated")
}

func TestRouteParams_UnresolvedToken(t *testing.T) {
	_, err := RouteParams(jobTool, map[string]any{"project": "p"})
	require.Error(t, err)

	var pe *PathResolutionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/v1/projects/p/jobs/{job_id}", pe.Path)
	assert.Equal(t, "Failed to resolve path parameters: /v1/projects/p/jobs/{job_id}", err.Error())
}

func TestRouteParams_UndeclaredToken(t *testing.T) {
	tool := catalog.Tool{Name: "bad", PathTemplate: "/v1/{missing}"}
	_, err := RouteParams(tool, map[string]any{"missing": "x"})
	var pe *PathResolutionError
	assert.True(t, errors.As(err, &pe))
}

func TestExtractBody_FromObject(t *testing.T) {
	b, err := ExtractBody(map[string]any{
		"requestBody": map[string]any{
			"prompts": []any{"cat"},
			"image":   "@/abs/cat.png",
		},
		"authorization": "Basic k",
	})
	require.NoError(t, err)
	require.Len(t, b.Fields, 2)

	assert.Equal(t, "image", b.Fields[0].Name)
	require.NotNil(t, b.Fields[0].File)
	assert.Equal(t, "/abs/cat.png", b.Fields[0].File.Ref)
	assert.Equal(t, files.KindImage, b.Fields[0].File.Kind)

	assert.Equal(t, "prompts", b.Fields[1].Name)
	assert.Nil(t, b.Fields[1].File)
}

func TestExtractBody_FromFormString(t *testing.T) {
	b, err := ExtractBody(map[string]any{
		"requestBody": "video=@/abs/clip.mp4&prompt=find+cats&chunk_length=%31%30&pdf=",
	})
	require.NoError(t, err)
	require.Len(t, b.Fields, 4)

	assert.Equal(t, &FileRef{Ref: "/abs/clip.mp4", Kind: files.KindVideo}, b.Fields[0].File)
	assert.Equal(t, "prompt", b.Fields[1].Name)
	assert.Equal(t, "find cats", b.Fields[1].Value)
	assert.Equal(t, "10", b.Fields[2].Value)
	assert.Nil(t, b.Fields[3].File, "empty file values are plain fields")
	assert.Len(t, b.FileRefs(), 1)
}

func TestExtractBody_FromRemainingArgs(t *testing.T) {
	b, err := ExtractBody(map[string]any{"pdf": "/docs/a.pdf", "authorization": "Basic k"})
	require.NoError(t, err)
	require.Len(t, b.Fields, 1)
	assert.Equal(t, files.KindPDF, b.Fields[0].File.Kind)

	b, err = ExtractBody(map[string]any{"authorization": "Basic k"})
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestExtractBody_RawAndErrors(t *testing.T) {
	b, err := ExtractBody(map[string]any{"requestBody": []any{1.0, 2.0}})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, b.Raw)

	_, err = ExtractBody(map[string]any{"requestBody": "a=%zz"})
	var se *SetupError
	assert.True(t, errors.As(err, &se))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "480", stringValue(480.0))
	assert.Equal(t, "0.25", stringValue(0.25))
	assert.Equal(t, "true", stringValue(true))
	assert.Equal(t, `["a"]`, stringValue([]any{"a"}))
	assert.Equal(t, `{"k":1}`, stringValue(map[string]any{"k": 1}))
}
