package dispatch

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"

	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/imaging"
)

const (
	// minImagePayload is the shortest base64 string treated as an image.
	minImagePayload = 1000
	// maxInlineImage is the longest base64 image returned without downscaling.
	maxInlineImage = 1_000_000
	// displayBox bounds downscaled inline images.
	displayBox = 512

	outputFilename = "output.png"
)

var base64Alphabet = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// IsValidBase64 reports whether s looks like an embedded image payload: the
// base64 alphabet with optional padding, a length that is a multiple of 4
// and at least 1000, and a decode/encode round trip that reproduces s
// modulo padding.
func IsValidBase64(s string) bool {
	if len(s)%4 != 0 || len(s) < minImagePayload {
		return false
	}
	if !base64Alphabet.MatchString(s) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	reEncoded := base64.StdEncoding.EncodeToString(decoded)
	return strings.TrimRight(s, "=") == strings.TrimRight(reEncoded, "=")
}

// Response is a completed 2xx exchange.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Interpreter turns successful responses into results, saving embedded
// images to the output directory.
type Interpreter struct {
	fs          afero.Fs
	outputDir   string
	display     bool
	uniqueNames bool
	logger      *common.Logger
}

// NewInterpreter creates an interpreter. An empty outputDir disables saving.
func NewInterpreter(fs afero.Fs, outputDir string, display, uniqueNames bool, logger *common.Logger) *Interpreter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Interpreter{fs: fs, outputDir: outputDir, display: display, uniqueNames: uniqueNames, logger: logger}
}

// Interpret classifies the response as text, JSON or an embedded image.
func (i *Interpreter) Interpret(resp *Response) *mcp.CallToolResult {
	text := responseText(resp)

	payload, ok := embeddedImage(resp.Body)
	if !ok {
		return textResult(fmt.Sprintf("API Text Response (Status: %d):\n%s", resp.StatusCode, text))
	}

	data, _ := base64.StdEncoding.DecodeString(payload)
	message, saved := i.persist(resp.StatusCode, data)
	if !saved {
		return textResult(fmt.Sprintf("API Text Response (Status: %d):\n%s", resp.StatusCode, text))
	}

	content := []mcp.Content{mcp.NewTextContent(message)}
	if i.display {
		if item, ok := i.inlineImage(payload, data); ok {
			content = append(content, item)
		}
	}
	return &mcp.CallToolResult{Content: content}
}

// persist writes the image and returns the result message. It reports
// false when the write failed.
func (i *Interpreter) persist(status int, data []byte) (string, bool) {
	if i.outputDir == "" {
		return fmt.Sprintf("API Image Response (Status: %d):\nImage successfully generated (no output directory configured, not saved)", status), true
	}

	name := outputFilename
	if i.uniqueNames {
		name = "output-" + uuid.NewString() + ".png"
	}
	path := filepath.Join(i.outputDir, name)
	if err := afero.WriteFile(i.fs, path, data, 0644); err != nil {
		i.logger.Warn().Str("path", path).Str("error", err.Error()).Msg("failed to save image response")
		return "", false
	}

	i.logger.Info().Str("path", path).Int("size", len(data)).Msg("image response saved")
	return fmt.Sprintf("API Image Response (Status: %d):\nImage successfully generated and saved to %s", status, path), true
}

func (i *Interpreter) inlineImage(payload string, data []byte) (mcp.Content, bool) {
	if len(payload) > maxInlineImage {
		resized, err := imaging.DownscaleBase64(payload, displayBox, displayBox)
		if err != nil {
			i.logger.Warn().Int("length", len(payload)).Str("error", err.Error()).Msg("failed to downscale inline image")
			return nil, false
		}
		i.logger.Debug().Int("from", len(payload)).Int("to", len(resized)).Msg("inline image downscaled")
		payload = resized
		data, _ = base64.StdEncoding.DecodeString(resized)
	}
	return mcp.NewImageContent(payload, mimetype.Detect(data).String()), true
}

// responseText renders the body: JSON objects and arrays pretty-printed
// with two-space indentation, anything else verbatim.
func responseText(resp *Response) string {
	body := resp.Body
	if strings.Contains(strings.ToLower(resp.ContentType), "application/json") {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			var out bytes.Buffer
			if err := json.Indent(&out, trimmed, "", "  "); err == nil {
				return out.String()
			}
		}
	}
	if len(body) == 0 {
		return fmt.Sprintf("(Status: %d - No body content)", resp.StatusCode)
	}
	return string(body)
}

// embeddedImage extracts data[0] from a JSON body when it is a valid
// base64 image payload.
func embeddedImage(body []byte) (string, bool) {
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
		return "", false
	}
	var payload string
	if err := json.Unmarshal(envelope.Data[0], &payload); err != nil {
		return "", false
	}
	if !IsValidBase64(payload) {
		return "", false
	}
	return payload, true
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}
