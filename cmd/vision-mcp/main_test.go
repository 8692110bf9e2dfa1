package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/schema"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const testCatalogYAML = `name: test-api
version: "1"
tools:
  - name: ping
    description: Ping the API.
    method: POST
    pathTemplate: /v1/ping
    inputSchema:
      type: object
      properties:
        message:
          type: string
      required: [message]
    executionParameters:
      - name: authorization
        in: header
    requestBodyContentType: application/json
`

const testOpenAPI = `openapi: 3.0.3
info:
  title: Mini API
  version: 0.0.1
servers:
  - url: https://mini.example.com
paths:
  /v1/echo:
    post:
      operationId: echo
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                text:
                  type: string
      responses:
        '200':
          description: ok
`

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "vision-mcp version "), out)
}

func TestToolsList_EmbeddedCatalog(t *testing.T) {
	t.Setenv("VISION_CATALOG_PATH", "")

	out, err := run(t, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "owlv2")
	assert.Contains(t, out, "multipart/form-data")
}

func TestToolsList_JSON(t *testing.T) {
	path := writeFile(t, "catalog.yaml", testCatalogYAML)

	out, err := run(t, "tools", "list", "--catalog", path, "--json")
	require.NoError(t, err)

	var tools []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "ping", tools[0]["name"])
	assert.Equal(t, "/v1/ping", tools[0]["pathTemplate"])
}

func TestCatalogValidate(t *testing.T) {
	out, err := run(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Equal(t, "embedded catalog: 29 tools OK\n", out)

	path := writeFile(t, "catalog.yaml", testCatalogYAML)
	out, err = run(t, "catalog", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 tools OK")
}

func TestCatalogValidate_BadSchema(t *testing.T) {
	bad := strings.Replace(testCatalogYAML, "type: string", "type: strnig", 1)
	path := writeFile(t, "bad.yaml", bad)

	_, err := run(t, "catalog", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "ping"`)
}

func TestCatalogGenerate(t *testing.T) {
	doc := writeFile(t, "openapi.yaml", testOpenAPI)

	out, err := run(t, "catalog", "generate", doc, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Mini API")
	assert.Contains(t, out, "baseUrl: https://mini.example.com")
	assert.Contains(t, out, "- name: echo")

	target := filepath.Join(t.TempDir(), "catalog.json")
	_, err = run(t, "catalog", "generate", doc, "--out", target, "--name", "mini")
	require.NoError(t, err)

	out, err = run(t, "tools", "list", "--catalog", target)
	require.NoError(t, err)
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "application/json")
}

func TestToolsCall(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pong":true}`))
	}))
	defer api.Close()

	t.Setenv("VISION_API_BASE_URL", api.URL)
	t.Setenv("VISION_AGENT_API_KEY", "k123")
	t.Setenv("VISION_CATALOG_PATH", writeFile(t, "catalog.yaml", testCatalogYAML))
	t.Setenv("OUTPUT_DIRECTORY", "")

	out, err := run(t, "tools", "call", "ping", "--args", `{"message":"hi"}`)
	require.NoError(t, err)

	assert.Equal(t, "{\n  \"pong\": true\n}\n", out)
	assert.Equal(t, map[string]any{"message": "hi"}, gotBody)
	assert.Equal(t, "Basic k123", gotAuth)
}

func TestToolsCall_LogsToStderr(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pong":true}`))
	}))
	defer api.Close()

	t.Setenv("VISION_API_BASE_URL", api.URL)
	t.Setenv("VISION_CATALOG_PATH", writeFile(t, "catalog.yaml", testCatalogYAML))

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"tools", "call", "ping", "--log-level", "info", "--args", `{"message":"hi"}`})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "{\n  \"pong\": true\n}\n", out.String())
	assert.Contains(t, errOut.String(), "executing tool")
	assert.Contains(t, errOut.String(), "tool=ping")
}

func TestToolsCall_ValidationError(t *testing.T) {
	t.Setenv("VISION_CATALOG_PATH", writeFile(t, "catalog.yaml", testCatalogYAML))

	out, err := run(t, "tools", "call", "ping")
	require.NoError(t, err, "failures are reported as text, not as command errors")
	assert.Contains(t, out, "Invalid arguments for tool 'ping': message (required): Required")
}

func TestToolsCall_ExampleMatchesEmbeddedCatalog(t *testing.T) {
	example := newToolsCallCmd(&rootFlags{}).Example
	m := regexp.MustCompile(`tools call (\S+) \\\s+--args '(.+)'`).FindStringSubmatch(example)
	require.Len(t, m, 3, example)

	cat, err := catalog.Load("")
	require.NoError(t, err)
	tool, ok := cat.Get(m[1])
	require.True(t, ok, "example names an unknown tool %q", m[1])

	args, err := readToolArgs(m[2], "", nil)
	require.NoError(t, err)
	s, err := schema.Compile(tool.InputSchema)
	require.NoError(t, err)
	_, err = s.ValidateArgs(args)
	assert.NoError(t, err)
}

func TestLoadConfig_MissingEnvFile(t *testing.T) {
	_, err := run(t, "tools", "list", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}

func TestReadToolArgs(t *testing.T) {
	args, err := readToolArgs("", "", nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = readToolArgs(`{"a":1}`, "", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, args)

	args, err = readToolArgs("", "-", strings.NewReader(`{"b":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": "x"}, args)

	_, err = readToolArgs(`[1,2]`, "", nil)
	assert.Error(t, err)

	_, err = readToolArgs(`{}`, "file.json", nil)
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	result := &mcpgo.CallToolResult{Content: []mcpgo.Content{
		mcpgo.NewTextContent("saved"),
		mcpgo.NewImageContent(strings.Repeat("A", 2048), "image/png"),
	}}

	require.NoError(t, writeResult(&buf, result, false))
	assert.Equal(t, "saved\n[image image/png, 2.0KB base64]\n", buf.String())
}
