// Package dispatch turns tool invocations into HTTP exchanges with the
// vision API and turns the responses back into MCP results.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/files"
	"github.com/bobmcallan/vision-mcp/internal/metrics"
	"github.com/bobmcallan/vision-mcp/internal/schema"
)

// maxResponseSize caps the API response body.
const maxResponseSize = 100 << 20 // 100MB

// Options configure a Dispatcher. Only Catalog is required.
type Options struct {
	Catalog *catalog.Catalog

	// BaseURL overrides the catalog's base URL.
	BaseURL string
	// APIKey is sent as "Basic <key>" in the authorization argument.
	APIKey string
	// OutputDir receives image responses; created on New. Empty disables saving.
	OutputDir string
	// DisplayImages adds an inline image item to image results.
	DisplayImages bool
	// UniqueNames saves each image under its own name instead of output.png.
	UniqueNames bool

	HTTPClient *http.Client
	Fs         afero.Fs
	Resolver   FileResolver
	Metrics    metrics.Recorder
	Logger     *common.Logger
}

// PreparedRequest is one fully built API request.
type PreparedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   *EncodedBody
}

// Dispatcher validates, routes and sends tool invocations. It holds no
// per-invocation state and is safe for concurrent use.
type Dispatcher struct {
	catalog     *catalog.Catalog
	baseURL     string
	apiKey      string
	client      *http.Client
	resolver    FileResolver
	interpreter *Interpreter
	schemas     *schema.Cache
	metrics     metrics.Recorder
	logger      *common.Logger
}

// New creates a dispatcher and the output directory, if one is set.
func New(opts Options) (*Dispatcher, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("dispatcher requires a catalog")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = common.NewSilentLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopRecorder()
	}
	if opts.Resolver == nil {
		opts.Resolver = files.NewResolver(opts.Fs, opts.HTTPClient, opts.Logger)
	}

	if opts.OutputDir != "" {
		if err := opts.Fs.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", opts.OutputDir, err)
		}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = opts.Catalog.BaseURL()
	}

	return &Dispatcher{
		catalog:     opts.Catalog,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      opts.APIKey,
		client:      opts.HTTPClient,
		resolver:    opts.Resolver,
		interpreter: NewInterpreter(opts.Fs, opts.OutputDir, opts.DisplayImages, opts.UniqueNames, opts.Logger),
		schemas:     schema.NewCache(),
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}, nil
}

// Catalog returns the dispatcher's catalog.
func (d *Dispatcher) Catalog() *catalog.Catalog { return d.catalog }

// Invoke runs one tool invocation. It never returns an error: every
// failure becomes a result holding a single text item.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (result *mcp.CallToolResult) {
	started := time.Now()
	logger := d.logger.WithCorrelationId(uuid.NewString())
	outcome := metrics.OutcomeError

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("tool", name).Str("panic", fmt.Sprint(r)).Msg("tool invocation panicked")
			outcome = metrics.OutcomeError
			result = textResult(fmt.Sprintf("Unexpected error: %v", r))
		}
		d.metrics.RecordToolCall(ctx, name, outcome, time.Since(started))
	}()

	tool, ok := d.catalog.Get(name)
	if !ok {
		outcome = metrics.OutcomeUnknownTool
		logger.Warn().Str("tool", name).Msg("unknown tool requested")
		return textResult("Error: Unknown tool requested: " + name)
	}

	logger.Info().Str("tool", name).Msg("executing tool")

	res, err := d.invoke(ctx, logger, tool, args)
	if err != nil {
		outcome = Classify(err)
		msg := Normalize(name, err)
		logger.Error().Str("tool", name).Str("outcome", string(outcome)).Int64("duration_ms", time.Since(started).Milliseconds()).Msg(msg)
		return textResult(msg)
	}

	outcome = metrics.OutcomeSuccess
	logger.Info().Str("tool", name).Int64("duration_ms", time.Since(started).Milliseconds()).Msg("tool completed")
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, logger *common.Logger, tool catalog.Tool, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := d.Prepare(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	resp, err := d.send(ctx, logger, req)
	if err != nil {
		return nil, err
	}
	return d.interpreter.Interpret(resp), nil
}

// Prepare validates args and builds the request for tool without sending
// it. File references are resolved as part of building the body.
func (d *Dispatcher) Prepare(ctx context.Context, tool catalog.Tool, args map[string]any) (*PreparedRequest, error) {
	callArgs := make(map[string]any, len(args)+1)
	for k, v := range args {
		callArgs[k] = v
	}
	if d.apiKey != "" {
		callArgs[authArg] = "Basic " + d.apiKey
	}

	s, err := d.schemas.Get(tool.Name, tool.InputSchema)
	if err != nil {
		return nil, &SchemaSetupError{Err: err}
	}
	validated, err := s.ValidateArgs(callArgs)
	if err != nil {
		return nil, err
	}

	route, err := RouteParams(tool, validated)
	if err != nil {
		return nil, err
	}

	var body *EncodedBody
	if tool.RequestBodyContentType != "" {
		extracted, err := ExtractBody(route.Remaining)
		if err != nil {
			return nil, err
		}
		body, err = BuildBody(ctx, tool.RequestBodyContentType, extracted, d.resolver)
		if err != nil {
			return nil, err
		}
	}

	target := d.baseURL + route.Path
	if len(route.Query) > 0 {
		target += "?" + route.Query.Encode()
	}

	header := http.Header{}
	for k, v := range route.Header {
		header[k] = v
	}
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", body.ContentType)
	}

	return &PreparedRequest{
		Method: strings.ToUpper(tool.Method),
		URL:    target,
		Header: header,
		Body:   body,
	}, nil
}

func (d *Dispatcher) send(ctx context.Context, logger *common.Logger, p *PreparedRequest) (*Response, error) {
	var reader io.Reader
	if p.Body != nil {
		reader = bytes.NewReader(p.Body.Data)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, reader)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	req.Header = p.Header

	logger.Debug().Str("method", p.Method).Str("url", p.URL).Msg("api request")

	start := time.Now()
	resp, err := d.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.Error().Str("method", p.Method).Str("url", p.URL).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("api request failed")
		return nil, &TransportError{Err: err, Code: transportCode(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err), Code: transportCode(err)}
	}

	logger.Debug().Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("api response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteAPIError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
			Body:       body,
		}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// statusText returns the reason phrase from the status line.
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
