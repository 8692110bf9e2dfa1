package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/bobmcallan/vision-mcp/internal/files"
	"github.com/bobmcallan/vision-mcp/internal/metrics"
	"github.com/bobmcallan/vision-mcp/internal/schema"
)

// maxErrorBody is how much of a remote error body is echoed back.
const maxErrorBody = 200

// PathResolutionError reports a {token} left in the path after routing.
type PathResolutionError struct {
	Tool string
	Path string
}

func (e *PathResolutionError) Error() string {
	return "Failed to resolve path parameters: " + e.Path
}

// SchemaSetupError reports a tool schema that could not be compiled.
type SchemaSetupError struct {
	Err error
}

func (e *SchemaSetupError) Error() string { return e.Err.Error() }
func (e *SchemaSetupError) Unwrap() error { return e.Err }

// SetupError reports a request that could not be built or sent.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return e.Err.Error() }
func (e *SetupError) Unwrap() error { return e.Err }

// TransportError reports a request that was sent without a response.
// Code is the errno-style name of the failure when one is known.
type TransportError struct {
	Err  error
	Code string
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// RemoteAPIError is a completed exchange with a non-2xx status.
type RemoteAPIError struct {
	StatusCode int
	StatusText string
	Body       []byte
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote API returned status %d", e.StatusCode)
}

// SerializationError reports a value that could not be serialized.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return e.Err.Error() }
func (e *SerializationError) Unwrap() error { return e.Err }

var errnoNames = map[syscall.Errno]string{
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.ECONNRESET:   "ECONNRESET",
	syscall.ECONNABORTED: "ECONNABORTED",
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.EHOSTUNREACH: "EHOSTUNREACH",
	syscall.ENETUNREACH:  "ENETUNREACH",
	syscall.EPIPE:        "EPIPE",
}

// transportCode names a transport failure the way socket APIs do.
func transportCode(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "ETIMEDOUT"
	}
	if errors.Is(err, context.Canceled) {
		return "ECONNABORTED"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "ECONNRESET"
	}
	return ""
}

// Normalize converts any invocation failure into a single-line message.
func Normalize(tool string, err error) string {
	var (
		validation *schema.ValidationError
		setupErr   *SchemaSetupError
		remote     *RemoteAPIError
		transport  *TransportError
		setup      *SetupError
		pathErr    *PathResolutionError
		fileErr    *files.FileAccessError
		serialErr  *SerializationError
	)

	var msg string
	switch {
	case errors.As(err, &validation):
		msg = fmt.Sprintf("Invalid arguments for tool '%s': %s", tool, validation.Error())
	case errors.As(err, &setupErr):
		msg = "Internal error during validation setup: " + setupErr.Error()
	case errors.As(err, &remote):
		msg = formatRemoteError(remote)
	case errors.As(err, &transport):
		msg = "API Network Error: No response received from server."
		if transport.Code != "" {
			msg += " (Code: " + transport.Code + ")"
		}
	case errors.As(err, &setup):
		msg = "API request failed. API Request Setup Error: " + setup.Error()
	case errors.As(err, &pathErr):
		msg = pathErr.Error()
	case errors.As(err, &fileErr):
		msg = fileErr.Error()
	case errors.As(err, &serialErr):
		msg = serialErr.Error()
	default:
		msg = "Unexpected error: " + err.Error()
	}
	return singleLine(msg)
}

func formatRemoteError(e *RemoteAPIError) string {
	statusText := e.StatusText
	if statusText == "" {
		statusText = http.StatusText(e.StatusCode)
	}
	if statusText == "" {
		statusText = "Status text not available"
	}
	msg := fmt.Sprintf("API Error: Status %d (%s). ", e.StatusCode, statusText)

	if len(bytes.TrimSpace(e.Body)) == 0 {
		return msg + "No response body received."
	}

	text := string(e.Body)
	var compact bytes.Buffer
	if json.Valid(e.Body) && json.Compact(&compact, e.Body) == nil {
		text = compact.String()
	}
	if len(text) > maxErrorBody {
		return msg + "Response: " + truncate(text, maxErrorBody) + "..."
	}
	return msg + "Response: " + text
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

// Classify maps an invocation failure to its metrics outcome.
func Classify(err error) metrics.Outcome {
	var (
		validation *schema.ValidationError
		remote     *RemoteAPIError
		transport  *TransportError
		fileErr    *files.FileAccessError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &validation):
		return metrics.OutcomeValidationError
	case errors.As(err, &fileErr):
		return metrics.OutcomeFileError
	case errors.As(err, &remote):
		return metrics.OutcomeRemoteError
	case errors.As(err, &transport):
		return metrics.OutcomeNetworkError
	}
	return metrics.OutcomeError
}
