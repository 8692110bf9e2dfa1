// Package files resolves file references (absolute local paths or http(s)
// URLs) into bytes ready for upload.
package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/bobmcallan/vision-mcp/internal/common"
	"github.com/bobmcallan/vision-mcp/internal/imaging"
)

// RelativePathMessage is returned for any file reference that is neither a
// URL nor an absolute path.
const RelativePathMessage = "Please provide a global (absolute) file path instead of a local one."

// maxFileSize caps downloads and local reads.
const maxFileSize = 200 << 20 // 200MB

const octetStream = "application/octet-stream"

// Kind is the expected kind of a referenced file.
type Kind string

const (
	KindImage  Kind = "image"
	KindPDF    Kind = "pdf"
	KindVideo  Kind = "video"
	KindBinary Kind = "binary"
)

// FieldKinds maps the body field names that carry file references to the
// kind of file they hold.
var FieldKinds = map[string]Kind{
	"image": KindImage,
	"pdf":   KindPDF,
	"video": KindVideo,
}

var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
	"pdf":  "application/pdf",
}

var videoExts = map[string]bool{"mp4": true, "mov": true, "avi": true, "wmv": true, "flv": true, "mkv": true, "webm": true}
var imageExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true, "svg": true, "tiff": true}

// LoadedFile is a resolved file reference.
type LoadedFile struct {
	Data        []byte
	ContentType string
	Filename    string
	Size        int
}

// Options tune Resolve.
type Options struct {
	Kind                Kind   // expected kind, used when the type cannot be detected
	ContentType         string // overrides the detected content type
	SkipImageProcessing bool
	KeepAlpha           bool
	OutputFormat        string // image target format, png when empty
	Filename            string // overrides the derived filename
}

// FileAccessError reports an unusable file reference: a relative path, an
// unreadable file or a failed download.
type FileAccessError struct {
	Ref string
	Err error
}

func (e *FileAccessError) Error() string {
	if e.Err == nil {
		return "file access failed: " + e.Ref
	}
	return e.Err.Error()
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// ErrRelativePath is wrapped by FileAccessError for relative references.
var ErrRelativePath = errors.New(RelativePathMessage)

// StripSigil removes the optional leading "@" from a reference.
func StripSigil(ref string) string {
	return strings.TrimPrefix(ref, "@")
}

// IsURL reports whether ref is an http(s) URL.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// CheckReference enforces the absolute-path policy. URLs always pass.
func CheckReference(ref string) error {
	ref = StripSigil(ref)
	if IsURL(ref) {
		return nil
	}
	if ref == "" || !filepath.IsAbs(filepath.Clean(ref)) {
		return &FileAccessError{Ref: ref, Err: ErrRelativePath}
	}
	return nil
}

// ContentTypeForExt maps a file extension (with or without the dot) to a
// MIME type, falling back to application/octet-stream.
func ContentTypeForExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	return octetStream
}

// DetectKind guesses the kind of a reference from its extension.
func DetectKind(ref string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(refPath(ref)), "."))
	switch {
	case ext == "pdf":
		return KindPDF
	case videoExts[ext]:
		return KindVideo
	case imageExts[ext]:
		return KindImage
	}
	return KindBinary
}

// SourceFormat returns the encodable image format named by the reference's
// extension, or "" when there is none.
func SourceFormat(ref string) string {
	ext := strings.TrimPrefix(path.Ext(refPath(StripSigil(ref))), ".")
	if ext == "" {
		return ""
	}
	return imaging.CanonicalFormat(ext)
}

// refPath returns the path portion of a reference, without URL query.
func refPath(ref string) string {
	if IsURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			return u.Path
		}
	}
	return filepath.ToSlash(ref)
}

func baseName(ref string) string {
	name := path.Base(refPath(ref))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// Resolver loads file references from a filesystem or over HTTP.
type Resolver struct {
	fs     afero.Fs
	client *http.Client
	logger *common.Logger
}

// NewResolver creates a resolver. A nil fs uses the OS filesystem and a nil
// client uses http.DefaultClient.
func NewResolver(fs afero.Fs, client *http.Client, logger *common.Logger) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Resolver{fs: fs, client: client, logger: logger}
}

// Resolve turns a reference into bytes, a content type and a filename.
// Images are re-encoded (alpha stripped, png by default) unless
// SkipImageProcessing is set; SVG is passed through as is.
func (r *Resolver) Resolve(ctx context.Context, ref string, opts Options) (*LoadedFile, error) {
	ref = StripSigil(ref)
	if err := CheckReference(ref); err != nil {
		return nil, err
	}

	data, contentType, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !IsURL(ref) {
		contentType = ContentTypeForExt(path.Ext(refPath(ref)))
	}
	contentType = mediaType(contentType)
	if contentType == octetStream || contentType == "" {
		contentType = fallbackContentType(data, opts.Kind)
	}
	if opts.ContentType != "" {
		contentType = mediaType(opts.ContentType)
	}
	filename := baseName(ref)

	switch {
	case isRasterImage(contentType) && !opts.SkipImageProcessing:
		out, format, err := imaging.Normalize(data, imaging.Options{Format: opts.OutputFormat, KeepAlpha: opts.KeepAlpha})
		if err != nil {
			return nil, &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to process image %s: %w", ref, err)}
		}
		data = out
		contentType = "image/" + format
		if ext := strings.TrimPrefix(path.Ext(filename), "."); ext == "" || imaging.CanonicalFormat(ext) != format {
			filename = replaceExt(filename, format)
		}
	case strings.HasPrefix(contentType, "video/"):
		if !strings.Contains(filename, ".") {
			filename += "." + videoExt(contentType)
		}
	case contentType == "application/pdf":
		if !strings.Contains(filename, ".") {
			filename += ".pdf"
		}
	}

	if opts.Filename != "" {
		filename = opts.Filename
	}

	r.logger.Debug().Str("ref", ref).Str("content_type", contentType).Int("size", len(data)).Msg("file resolved")

	return &LoadedFile{
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
		Size:        len(data),
	}, nil
}

// InlinePayload fetches a reference and returns its bytes as standard
// base64. Image payloads are always normalized to alpha-free PNG.
func (r *Resolver) InlinePayload(ctx context.Context, ref string, kind Kind) (string, error) {
	ref = StripSigil(ref)
	if err := CheckReference(ref); err != nil {
		return "", err
	}
	if kind == "" {
		kind = DetectKind(ref)
	}

	data, contentType, err := r.fetch(ctx, ref)
	if err != nil {
		return "", err
	}

	if kind == KindImage && !isSVG(ref, contentType) {
		out, _, err := imaging.Normalize(data, imaging.Options{Format: imaging.FormatPNG})
		if err != nil {
			return "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to process file %s: %w", ref, err)}
		}
		data = out
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// fetch reads a local file or downloads a URL. For URLs the content type
// comes from the response header, or is sniffed when the header is absent.
func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if !IsURL(ref) {
		f, err := r.fs.Open(ref)
		if err != nil {
			return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to read file %s: %w", ref, err)}
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
		if err != nil {
			return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to read file %s: %w", ref, err)}
		}
		return data, "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("invalid file URL %s: %w", ref, err)}
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		r.logger.Error().Str("url", ref).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("file download failed")
		return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to download %s: %w", ref, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to download %s: %w", ref, err)}
	}

	r.logger.Debug().Str("url", ref).Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("file downloaded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FileAccessError{Ref: ref, Err: fmt.Errorf("failed to download %s: status %d", ref, resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return data, contentType, nil
}

// mediaType strips parameters from a Content-Type value.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return mt
}

// fallbackContentType sniffs bytes whose type neither the extension nor the
// server named. When sniffing fails too, the expected kind decides.
func fallbackContentType(data []byte, kind Kind) string {
	if sniffed := mediaType(mimetype.Detect(data).String()); sniffed != octetStream {
		switch kind {
		case KindImage, KindPDF, KindVideo:
			if kindForContentType(sniffed) == kind {
				return sniffed
			}
		default:
			return sniffed
		}
	}
	switch kind {
	case KindPDF:
		return "application/pdf"
	case KindVideo:
		return "video/mp4"
	}
	return octetStream
}

// kindForContentType maps a media type to a file kind.
func kindForContentType(contentType string) Kind {
	switch {
	case contentType == "application/pdf":
		return KindPDF
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	}
	return KindBinary
}

// videoExt returns the file extension for a video media type.
func videoExt(contentType string) string {
	for ext, ct := range mimeTypes {
		if ct == contentType {
			return ext
		}
	}
	if sub := strings.TrimPrefix(contentType, "video/"); sub != "" && sub != contentType {
		return sub
	}
	return "mp4"
}

func isSVG(ref, contentType string) bool {
	return strings.HasPrefix(contentType, "image/svg") || strings.EqualFold(path.Ext(refPath(ref)), ".svg")
}

// isRasterImage reports whether contentType is an image we can re-encode.
func isRasterImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "image/svg")
}

func replaceExt(filename, ext string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[:i] + "." + ext
	}
	return filename + "." + ext
}
